package models

import (
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/wallet"
)

func ToWalletResponse(rhs *wallet.WalletModel) *WalletResponse {
	return &WalletResponse{
		ID:                 rhs.ID,
		UserID:             rhs.UserID,
		Type:               rhs.Type,
		LightningAddress:   rhs.LightningAddress,
		Balance:            rhs.Balance,
		ConfirmedBalance:   rhs.ConfirmedBalance,
		UnconfirmedBalance: rhs.UnconfirmedBalance,
		CreatedAt:          rhs.CreatedAt,
		UpdatedAt:          rhs.UpdatedAt,
	}
}

func ToTransactionHistoryResponse(rhs *wallet.TransactionHistory) *TransactionHistoryResponse {
	return &TransactionHistoryResponse{
		Transactions: ToTransactionCollectionResponse(rhs.Transactions),
		Page:         rhs.Page,
		Limit:        rhs.Limit,
		Total:        rhs.Total,
		TotalPages:   rhs.TotalPages,
	}
}
