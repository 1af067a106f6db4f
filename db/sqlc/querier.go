package db

import (
	"context"

	"github.com/google/uuid"
)

type Querier interface {
	CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) (AuditLog, error)
	ListAuditLogsByUser(ctx context.Context, arg ListAuditLogsByUserParams) ([]AuditLog, error)

	CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error)
	GetTransactionByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (Transaction, error)
	SetTransactionInvoice(ctx context.Context, arg SetTransactionInvoiceParams) (Transaction, error)
	MarkTransactionProcessing(ctx context.Context, arg MarkTransactionProcessingParams) (Transaction, error)
	RecordOrphanedCollection(ctx context.Context, arg RecordOrphanedCollectionParams) (Transaction, error)
	RecordLightningPayment(ctx context.Context, arg RecordLightningPaymentParams) (Transaction, error)
	ClaimTransactionSettlement(ctx context.Context, arg ClaimTransactionSettlementParams) (Transaction, error)
	CompleteTransaction(ctx context.Context, arg CompleteTransactionParams) (Transaction, error)
	FailTransaction(ctx context.Context, arg FailTransactionParams) (Transaction, error)
	CancelTransaction(ctx context.Context, arg CancelTransactionParams) (Transaction, error)
	ExpireStalePendingTransactions(ctx context.Context, arg ExpireStalePendingTransactionsParams) ([]Transaction, error)
	ListTransactionsByUser(ctx context.Context, arg ListTransactionsByUserParams) ([]Transaction, error)
	CountTransactionsByUser(ctx context.Context, arg CountTransactionsByUserParams) (int64, error)
	GetTransactionStats(ctx context.Context, arg GetTransactionStatsParams) ([]GetTransactionStatsRow, error)

	CreateWallet(ctx context.Context, arg CreateWalletParams) (Wallet, error)
	GetWalletByUserID(ctx context.Context, userID int64) (Wallet, error)
	CreditWallet(ctx context.Context, arg CreditWalletParams) (Wallet, error)
	DebitWallet(ctx context.Context, arg DebitWalletParams) (Wallet, error)
	UpdateWalletSettings(ctx context.Context, arg UpdateWalletSettingsParams) (Wallet, error)
}

var _ Querier = (*Queries)(nil)
