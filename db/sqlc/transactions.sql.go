package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const transactionColumns = `id, reference_no, user_id, merchant_id, amount, currency, amount_sats, payment_method,
    description, payee, phone_number, metadata, lightning_invoice, lightning_payment_hash, lightning_preimage,
    lightning_fee_sats, mpesa_checkout_request_id, mpesa_merchant_request_id, mpesa_receipt_number, mpesa_amount,
    status, error_message, reconciliation_required, settlement_started_at, created_at, updated_at, completed_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.ReferenceNo,
		&i.UserID,
		&i.MerchantID,
		&i.Amount,
		&i.Currency,
		&i.AmountSats,
		&i.PaymentMethod,
		&i.Description,
		&i.Payee,
		&i.PhoneNumber,
		&i.Metadata,
		&i.LightningInvoice,
		&i.LightningPaymentHash,
		&i.LightningPreimage,
		&i.LightningFeeSats,
		&i.MpesaCheckoutRequestID,
		&i.MpesaMerchantRequestID,
		&i.MpesaReceiptNumber,
		&i.MpesaAmount,
		&i.Status,
		&i.ErrorMessage,
		&i.ReconciliationRequired,
		&i.SettlementStartedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.CompletedAt,
	)
	return i, err
}

const createTransaction = `-- name: CreateTransaction :one
INSERT INTO transactions (
    id, user_id, merchant_id, amount, currency, amount_sats, payment_method,
    description, payee, phone_number, metadata, status
) VALUES (
    $1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, 'PENDING'
)
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	ID            uuid.UUID             `json:"id"`
	UserID        int64                 `json:"user_id"`
	MerchantID    sql.NullString        `json:"merchant_id"`
	Amount        string                `json:"amount"`
	Currency      string                `json:"currency"`
	AmountSats    int64                 `json:"amount_sats"`
	PaymentMethod string                `json:"payment_method"`
	Description   string                `json:"description"`
	Payee         string                `json:"payee"`
	PhoneNumber   string                `json:"phone_number"`
	Metadata      pqtype.NullRawMessage `json:"metadata"`
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.ID,
		arg.UserID,
		arg.MerchantID,
		arg.Amount,
		arg.Currency,
		arg.AmountSats,
		arg.PaymentMethod,
		arg.Description,
		arg.Payee,
		arg.PhoneNumber,
		arg.Metadata,
	)
	return scanTransaction(row)
}

const getTransaction = `-- name: GetTransaction :one
SELECT ` + transactionColumns + `
FROM transactions
WHERE id = $1`

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, id)
	return scanTransaction(row)
}

const getTransactionByCheckoutRequestID = `-- name: GetTransactionByCheckoutRequestID :one
SELECT ` + transactionColumns + `
FROM transactions
WHERE mpesa_checkout_request_id = $1`

func (q *Queries) GetTransactionByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransactionByCheckoutRequestID, checkoutRequestID)
	return scanTransaction(row)
}

const setTransactionInvoice = `-- name: SetTransactionInvoice :one
UPDATE transactions
SET lightning_invoice = $2, lightning_payment_hash = $3, updated_at = now()
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + transactionColumns

type SetTransactionInvoiceParams struct {
	ID                   uuid.UUID `json:"id"`
	LightningInvoice     string    `json:"lightning_invoice"`
	LightningPaymentHash string    `json:"lightning_payment_hash"`
}

func (q *Queries) SetTransactionInvoice(ctx context.Context, arg SetTransactionInvoiceParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, setTransactionInvoice, arg.ID, arg.LightningInvoice, arg.LightningPaymentHash)
	return scanTransaction(row)
}

const markTransactionProcessing = `-- name: MarkTransactionProcessing :one
UPDATE transactions
SET status = 'PROCESSING',
    mpesa_checkout_request_id = $2,
    mpesa_merchant_request_id = $3,
    mpesa_amount = $4,
    updated_at = now()
WHERE id = $1
  AND status = 'PENDING'
  AND lightning_invoice IS NOT NULL
RETURNING ` + transactionColumns

type MarkTransactionProcessingParams struct {
	ID                     uuid.UUID `json:"id"`
	MpesaCheckoutRequestID string    `json:"mpesa_checkout_request_id"`
	MpesaMerchantRequestID string    `json:"mpesa_merchant_request_id"`
	MpesaAmount            int64     `json:"mpesa_amount"`
}

func (q *Queries) MarkTransactionProcessing(ctx context.Context, arg MarkTransactionProcessingParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, markTransactionProcessing, arg.ID, arg.MpesaCheckoutRequestID, arg.MpesaMerchantRequestID, arg.MpesaAmount)
	return scanTransaction(row)
}

// A collection was requested for a row that had already left PENDING. The
// checkout id is kept so the callback still correlates.
const recordOrphanedCollection = `-- name: RecordOrphanedCollection :one
UPDATE transactions
SET mpesa_checkout_request_id = $2,
    mpesa_merchant_request_id = $3,
    mpesa_amount = $4,
    error_message = $5,
    reconciliation_required = TRUE,
    updated_at = now()
WHERE id = $1
  AND status <> 'PROCESSING'
  AND mpesa_checkout_request_id IS NULL
RETURNING ` + transactionColumns

type RecordOrphanedCollectionParams struct {
	ID                     uuid.UUID `json:"id"`
	MpesaCheckoutRequestID string    `json:"mpesa_checkout_request_id"`
	MpesaMerchantRequestID string    `json:"mpesa_merchant_request_id"`
	MpesaAmount            int64     `json:"mpesa_amount"`
	ErrorMessage           string    `json:"error_message"`
}

func (q *Queries) RecordOrphanedCollection(ctx context.Context, arg RecordOrphanedCollectionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, recordOrphanedCollection,
		arg.ID,
		arg.MpesaCheckoutRequestID,
		arg.MpesaMerchantRequestID,
		arg.MpesaAmount,
		arg.ErrorMessage,
	)
	return scanTransaction(row)
}

const claimTransactionSettlement = `-- name: ClaimTransactionSettlement :one
UPDATE transactions
SET settlement_started_at = now(),
    mpesa_receipt_number = COALESCE($2, mpesa_receipt_number),
    updated_at = now()
WHERE id = $1
  AND status = 'PROCESSING'
  AND settlement_started_at IS NULL
RETURNING ` + transactionColumns

type ClaimTransactionSettlementParams struct {
	ID                 uuid.UUID      `json:"id"`
	MpesaReceiptNumber sql.NullString `json:"mpesa_receipt_number"`
}

func (q *Queries) ClaimTransactionSettlement(ctx context.Context, arg ClaimTransactionSettlementParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, claimTransactionSettlement, arg.ID, arg.MpesaReceiptNumber)
	return scanTransaction(row)
}

const recordLightningPayment = `-- name: RecordLightningPayment :one
UPDATE transactions
SET lightning_preimage = $2,
    lightning_fee_sats = $3,
    updated_at = now()
WHERE id = $1
  AND status = 'PROCESSING'
  AND settlement_started_at IS NOT NULL
RETURNING ` + transactionColumns

type RecordLightningPaymentParams struct {
	ID                uuid.UUID      `json:"id"`
	LightningPreimage sql.NullString `json:"lightning_preimage"`
	LightningFeeSats  int64          `json:"lightning_fee_sats"`
}

func (q *Queries) RecordLightningPayment(ctx context.Context, arg RecordLightningPaymentParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, recordLightningPayment, arg.ID, arg.LightningPreimage, arg.LightningFeeSats)
	return scanTransaction(row)
}

const completeTransaction = `-- name: CompleteTransaction :one
UPDATE transactions
SET status = 'COMPLETED',
    lightning_preimage = $2,
    lightning_fee_sats = $3,
    completed_at = now(),
    updated_at = now()
WHERE id = $1 AND status = 'PROCESSING'
RETURNING ` + transactionColumns

type CompleteTransactionParams struct {
	ID                uuid.UUID      `json:"id"`
	LightningPreimage sql.NullString `json:"lightning_preimage"`
	LightningFeeSats  int64          `json:"lightning_fee_sats"`
}

func (q *Queries) CompleteTransaction(ctx context.Context, arg CompleteTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, completeTransaction, arg.ID, arg.LightningPreimage, arg.LightningFeeSats)
	return scanTransaction(row)
}

const failTransaction = `-- name: FailTransaction :one
UPDATE transactions
SET status = 'FAILED',
    error_message = $2,
    reconciliation_required = $3,
    updated_at = now()
WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
RETURNING ` + transactionColumns

type FailTransactionParams struct {
	ID                     uuid.UUID `json:"id"`
	ErrorMessage           string    `json:"error_message"`
	ReconciliationRequired bool      `json:"reconciliation_required"`
}

func (q *Queries) FailTransaction(ctx context.Context, arg FailTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, failTransaction, arg.ID, arg.ErrorMessage, arg.ReconciliationRequired)
	return scanTransaction(row)
}

const cancelTransaction = `-- name: CancelTransaction :one
UPDATE transactions
SET status = 'CANCELLED',
    metadata = COALESCE(metadata, '{}'::jsonb) || $3::jsonb,
    updated_at = now()
WHERE id = $1 AND user_id = $2 AND status = 'PENDING'
RETURNING ` + transactionColumns

type CancelTransactionParams struct {
	ID       uuid.UUID             `json:"id"`
	UserID   int64                 `json:"user_id"`
	Metadata pqtype.NullRawMessage `json:"metadata"`
}

func (q *Queries) CancelTransaction(ctx context.Context, arg CancelTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, cancelTransaction, arg.ID, arg.UserID, arg.Metadata)
	return scanTransaction(row)
}

// Rows left PENDING past the cutoff were abandoned mid-initiation; no
// checkout id was recorded for them so no callback can ever settle them.
const expireStalePendingTransactions = `-- name: ExpireStalePendingTransactions :many
UPDATE transactions
SET status = 'FAILED',
    error_message = $2,
    updated_at = now()
WHERE status = 'PENDING' AND created_at < $1
RETURNING ` + transactionColumns

type ExpireStalePendingTransactionsParams struct {
	CreatedBefore time.Time `json:"created_before"`
	ErrorMessage  string    `json:"error_message"`
}

func (q *Queries) ExpireStalePendingTransactions(ctx context.Context, arg ExpireStalePendingTransactionsParams) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, expireStalePendingTransactions, arg.CreatedBefore, arg.ErrorMessage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Transaction{}
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listTransactionsByUser = `-- name: ListTransactionsByUser :many
SELECT ` + transactionColumns + `
FROM transactions
WHERE user_id = $1
  AND ($2::text IS NULL OR status = $2::text)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`

type ListTransactionsByUserParams struct {
	UserID int64          `json:"user_id"`
	Status sql.NullString `json:"status"`
	Limit  int32          `json:"limit"`
	Offset int32          `json:"offset"`
}

func (q *Queries) ListTransactionsByUser(ctx context.Context, arg ListTransactionsByUserParams) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsByUser, arg.UserID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Transaction{}
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countTransactionsByUser = `-- name: CountTransactionsByUser :one
SELECT COUNT(*)
FROM transactions
WHERE user_id = $1
  AND ($2::text IS NULL OR status = $2::text)`

type CountTransactionsByUserParams struct {
	UserID int64          `json:"user_id"`
	Status sql.NullString `json:"status"`
}

func (q *Queries) CountTransactionsByUser(ctx context.Context, arg CountTransactionsByUserParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countTransactionsByUser, arg.UserID, arg.Status)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getTransactionStats = `-- name: GetTransactionStats :many
SELECT status, COUNT(*) AS count, COALESCE(SUM(amount_sats), 0)::bigint AS total_sats
FROM transactions
WHERE user_id = $1 AND created_at >= $2
GROUP BY status
ORDER BY status`

type GetTransactionStatsParams struct {
	UserID int64     `json:"user_id"`
	Since  time.Time `json:"since"`
}

type GetTransactionStatsRow struct {
	Status    string `json:"status"`
	Count     int64  `json:"count"`
	TotalSats int64  `json:"total_sats"`
}

func (q *Queries) GetTransactionStats(ctx context.Context, arg GetTransactionStatsParams) ([]GetTransactionStatsRow, error) {
	rows, err := q.db.QueryContext(ctx, getTransactionStats, arg.UserID, arg.Since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetTransactionStatsRow{}
	for rows.Next() {
		var i GetTransactionStatsRow
		if err := rows.Scan(&i.Status, &i.Count, &i.TotalSats); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
