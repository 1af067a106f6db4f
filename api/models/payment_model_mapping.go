package models

import (
	db "github.com/SwiftFiat/SwiftFiat-Settlement/db/sqlc"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/payment"
)

func ToInitiatePaymentResponse(rhs *payment.InitiateResult) *InitiatePaymentResponse {
	return &InitiatePaymentResponse{
		TransactionID:     rhs.TransactionID,
		CheckoutRequestID: rhs.CheckoutRequestID,
		PaymentRequest:    rhs.PaymentRequest,
		PaymentHash:       rhs.PaymentHash,
		AmountSats:        rhs.AmountSats,
		Reference:         rhs.Reference,
		ExpiresAt:         rhs.ExpiresAt,
		Status:            db.TransactionStatusProcessing,
	}
}

func ToTransactionResponse(rhs *db.Transaction) *TransactionResponse {
	resp := &TransactionResponse{
		ID:                     rhs.ID,
		UserID:                 rhs.UserID,
		MerchantID:             rhs.MerchantID.String,
		Amount:                 rhs.Amount,
		Currency:               rhs.Currency,
		AmountSats:             rhs.AmountSats,
		PaymentMethod:          rhs.PaymentMethod,
		Description:            rhs.Description,
		Payee:                  rhs.Payee,
		Status:                 rhs.Status,
		PaymentRequest:         rhs.LightningInvoice.String,
		PaymentHash:            rhs.LightningPaymentHash.String,
		LightningFeeSats:       rhs.LightningFeeSats,
		CheckoutRequestID:      rhs.MpesaCheckoutRequestID.String,
		MpesaReceiptNumber:     rhs.MpesaReceiptNumber.String,
		ErrorMessage:           rhs.ErrorMessage.String,
		ReconciliationRequired: rhs.ReconciliationRequired,
		CreatedAt:              rhs.CreatedAt,
		UpdatedAt:              rhs.UpdatedAt,
	}
	if rhs.Metadata.Valid {
		resp.Metadata = rhs.Metadata.RawMessage
	}
	if rhs.CompletedAt.Valid {
		completed := rhs.CompletedAt.Time
		resp.CompletedAt = &completed
	}
	return resp
}

func ToTransactionCollectionResponse(txns []db.Transaction) []TransactionResponse {
	response := make([]TransactionResponse, len(txns))
	for i := range txns {
		response[i] = *ToTransactionResponse(&txns[i])
	}
	return response
}
