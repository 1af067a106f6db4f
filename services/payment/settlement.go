package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	db "github.com/SwiftFiat/SwiftFiat-Settlement/db/sqlc"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers/lightning"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers/mobilemoney"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/notification"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/wallet"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Complete applies an M-Pesa callback to the transaction it correlates with.
// It is safe under duplicate and concurrent delivery: only the caller that
// claims the settlement row pays the invoice. The returned outcome is for
// logging and metrics; the gateway is always acknowledged.
func (s *PaymentService) Complete(ctx context.Context, cb *mobilemoney.CallbackResult) (string, error) {
	outcome, err := s.complete(ctx, cb)
	s.metrics.PaymentCallback(outcome)
	return outcome, err
}

func (s *PaymentService) complete(ctx context.Context, cb *mobilemoney.CallbackResult) (string, error) {
	log := s.logger.WithFields(logrus.Fields{
		"checkout_request_id": cb.CheckoutRequestID,
		"result_code":         cb.ResultCode,
	})

	txn, err := s.store.GetTransactionByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn("callback for unknown checkout request")
		return OutcomeUnknown, nil
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("could not load transaction for callback")
		return OutcomeUnknown, fmt.Errorf("load transaction: %w", err)
	}

	log = log.WithFields(logrus.Fields{
		"transaction_id": txn.ID.String(),
		"user_id":        txn.UserID,
	})

	if txn.Status != db.TransactionStatusProcessing && txn.ReconciliationRequired && !txn.SettlementStartedAt.Valid {
		return s.orphanedCallback(ctx, txn, cb), nil
	}
	if txn.Status != db.TransactionStatusProcessing || txn.SettlementStartedAt.Valid {
		log.WithField("status", txn.Status).Info("duplicate callback ignored")
		return OutcomeDuplicate, nil
	}

	if !cb.Succeeded() {
		_, err := s.store.FailTransaction(ctx, db.FailTransactionParams{
			ID:           txn.ID,
			ErrorMessage: cb.ResultDesc,
		})
		if errors.Is(err, sql.ErrNoRows) {
			return OutcomeDuplicate, nil
		}
		if err != nil {
			return OutcomeFailed, fmt.Errorf("fail transaction: %w", err)
		}
		log.WithField("result_desc", cb.ResultDesc).Info("mpesa collection failed")
		return OutcomeFailed, nil
	}

	claimed, err := s.store.ClaimTransactionSettlement(ctx, db.ClaimTransactionSettlementParams{
		ID:                 txn.ID,
		MpesaReceiptNumber: sql.NullString{String: cb.ReceiptNumber, Valid: cb.ReceiptNumber != ""},
	})
	if errors.Is(err, sql.ErrNoRows) {
		log.Info("settlement already claimed by another delivery")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("claim settlement: %w", err)
	}

	if reason, ok := amountMismatch(claimed, cb); ok {
		s.reconcile(ctx, claimed, reason, nil)
		return OutcomeReconciliation, nil
	}

	payment, err := s.node.PayInvoice(ctx, claimed.LightningInvoice.String)
	if err != nil {
		s.reconcile(ctx, claimed, fmt.Sprintf("lightning payment failed: %v", err), nil)
		return OutcomeReconciliation, nil
	}

	// Keep the proof of payment even if the ledger transaction below fails.
	if paid, err := s.store.RecordLightningPayment(ctx, db.RecordLightningPaymentParams{
		ID:                claimed.ID,
		LightningPreimage: sql.NullString{String: payment.Preimage, Valid: payment.Preimage != ""},
		LightningFeeSats:  payment.FeeSats,
	}); err != nil {
		log.WithFields(logrus.Fields{
			"lightning_preimage": payment.Preimage,
			"fee_sats":           payment.FeeSats,
			"error":              err.Error(),
		}).Error("could not record lightning payment")
	} else {
		claimed = paid
	}

	var credit *wallet.OperationResult
	err = s.store.ExecTx(ctx, func(q db.Querier) error {
		if _, err := q.CompleteTransaction(ctx, db.CompleteTransactionParams{
			ID:                claimed.ID,
			LightningPreimage: sql.NullString{String: payment.Preimage, Valid: payment.Preimage != ""},
			LightningFeeSats:  payment.FeeSats,
		}); err != nil {
			return fmt.Errorf("complete transaction: %w", err)
		}

		var err error
		credit, err = s.wallets.CreditWithQueries(ctx, q, claimed.UserID, decimal.NewFromInt(claimed.AmountSats), map[string]interface{}{
			"transaction_id": claimed.ID.String(),
			"payment_hash":   claimed.LightningPaymentHash.String,
			"mpesa_receipt":  claimed.MpesaReceiptNumber.String,
		})
		return err
	})
	if err != nil {
		s.reconcile(ctx, claimed, fmt.Sprintf("ledger update failed after lightning payment: %v", err), payment)
		return OutcomeReconciliation, nil
	}

	s.wallets.Committed(ctx, credit)

	log.WithFields(logrus.Fields{
		"payment_hash":  claimed.LightningPaymentHash.String,
		"mpesa_receipt": claimed.MpesaReceiptNumber.String,
		"fee_sats":      payment.FeeSats,
	}).Info("payment completed")

	if s.config.SMSReceipts {
		s.sendReceipt(ctx, claimed)
	}
	return OutcomeCompleted, nil
}

// orphanedCallback handles a callback for a collection that was requested
// after its transaction had already been cancelled or expired. A successful
// collection cannot be settled and is escalated with its receipt.
func (s *PaymentService) orphanedCallback(ctx context.Context, txn db.Transaction, cb *mobilemoney.CallbackResult) string {
	if !cb.Succeeded() {
		s.logger.WithFields(logrus.Fields{
			"transaction_id":      txn.ID.String(),
			"checkout_request_id": cb.CheckoutRequestID,
			"result_desc":         cb.ResultDesc,
		}).Info("orphaned mpesa collection was not completed by the payer")
		return OutcomeFailed
	}
	txn.MpesaReceiptNumber = sql.NullString{String: cb.ReceiptNumber, Valid: cb.ReceiptNumber != ""}
	s.flag(ctx, txn, "mpesa collected for a transaction that will not settle",
		fmt.Sprintf("payer charged %s KES after the transaction was %s", cb.Amount, strings.ToLower(txn.Status)), nil)
	return OutcomeReconciliation
}

// amountMismatch reports whether the callback collected a different amount
// from the one requested. Rows without a recorded amount are not checked.
func amountMismatch(txn db.Transaction, cb *mobilemoney.CallbackResult) (string, bool) {
	if txn.MpesaAmount == 0 || cb.Amount == "" {
		return "", false
	}
	collected, err := decimal.NewFromString(cb.Amount)
	if err == nil && collected.Equal(decimal.NewFromInt(txn.MpesaAmount)) {
		return "", false
	}
	return fmt.Sprintf("mpesa amount mismatch: requested %d KES, callback reported %q", txn.MpesaAmount, cb.Amount), true
}

// reconcile fails the transaction and flags it for an operator. paid is
// non-nil when the invoice was settled and only the wallet credit is missing.
func (s *PaymentService) reconcile(ctx context.Context, txn db.Transaction, reason string, paid *lightning.Payment) {
	s.fail(ctx, txn.ID, reason, true)
	s.metrics.ReconciliationRequired()

	summary := "mpesa collected but lightning not settled"
	if paid != nil {
		summary = "lightning paid but wallet not credited"
	}
	s.flag(ctx, txn, summary, reason, paid)
}

// flag logs a divergence between the rails and alerts the operators.
func (s *PaymentService) flag(ctx context.Context, txn db.Transaction, summary, reason string, paid *lightning.Payment) {
	fields := logrus.Fields{
		"transaction_id":          txn.ID.String(),
		"user_id":                 txn.UserID,
		"checkout_request_id":     txn.MpesaCheckoutRequestID.String,
		"mpesa_receipt":           txn.MpesaReceiptNumber.String,
		"payment_hash":            txn.LightningPaymentHash.String,
		"amount_sats":             txn.AmountSats,
		"reconciliation_required": true,
		"reason":                  reason,
	}
	alert := notification.ReconciliationAlert{
		TransactionID:     txn.ID.String(),
		UserID:            txn.UserID,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
		AmountSats:        txn.AmountSats,
		CheckoutRequestID: txn.MpesaCheckoutRequestID.String,
		ReceiptNumber:     txn.MpesaReceiptNumber.String,
		PaymentHash:       txn.LightningPaymentHash.String,
		Reason:            reason,
	}
	if paid != nil {
		fields["lightning_preimage"] = paid.Preimage
		fields["fee_sats"] = paid.FeeSats
		alert.Preimage = paid.Preimage
	}
	s.logger.WithFields(fields).Error(summary)

	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyReconciliation(ctx, alert); err != nil {
		s.logger.WithFields(logrus.Fields{
			"transaction_id": txn.ID.String(),
			"error":          err.Error(),
		}).Warn("reconciliation alert not delivered")
	}
}

func (s *PaymentService) sendReceipt(ctx context.Context, txn db.Transaction) {
	if s.notifier == nil {
		return
	}
	reference, _ := s.references.Encode(txn.ReferenceNo)
	err := s.notifier.SendReceipt(ctx, notification.Receipt{
		PhoneNumber:   txn.PhoneNumber,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		AmountSats:    txn.AmountSats,
		Payee:         txn.Payee,
		ReceiptNumber: txn.MpesaReceiptNumber.String,
		Reference:     reference,
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"transaction_id": txn.ID.String(),
			"error":          err.Error(),
		}).Warn("receipt not delivered")
	}
}
