package db

import (
	"context"
	"database/sql"
)

const walletColumns = `id, user_id, type, lightning_address, balance, confirmed_balance, unconfirmed_balance, created_at, updated_at`

func scanWallet(row interface{ Scan(...interface{}) error }) (Wallet, error) {
	var i Wallet
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Type,
		&i.LightningAddress,
		&i.Balance,
		&i.ConfirmedBalance,
		&i.UnconfirmedBalance,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createWallet = `-- name: CreateWallet :one
INSERT INTO wallets (user_id, type, lightning_address)
VALUES ($1, $2, $3)
RETURNING ` + walletColumns

type CreateWalletParams struct {
	UserID           int64          `json:"user_id"`
	Type             string         `json:"type"`
	LightningAddress sql.NullString `json:"lightning_address"`
}

func (q *Queries) CreateWallet(ctx context.Context, arg CreateWalletParams) (Wallet, error) {
	row := q.db.QueryRowContext(ctx, createWallet, arg.UserID, arg.Type, arg.LightningAddress)
	return scanWallet(row)
}

const getWalletByUserID = `-- name: GetWalletByUserID :one
SELECT ` + walletColumns + `
FROM wallets
WHERE user_id = $1`

func (q *Queries) GetWalletByUserID(ctx context.Context, userID int64) (Wallet, error) {
	row := q.db.QueryRowContext(ctx, getWalletByUserID, userID)
	return scanWallet(row)
}

const creditWallet = `-- name: CreditWallet :one
UPDATE wallets
SET balance = balance + $2::numeric, updated_at = now()
WHERE user_id = $1
RETURNING ` + walletColumns

type CreditWalletParams struct {
	UserID int64  `json:"user_id"`
	Amount string `json:"amount"`
}

func (q *Queries) CreditWallet(ctx context.Context, arg CreditWalletParams) (Wallet, error) {
	row := q.db.QueryRowContext(ctx, creditWallet, arg.UserID, arg.Amount)
	return scanWallet(row)
}

// The balance guard lives in the WHERE clause so the check and the mutation
// are one statement; no row means missing wallet or insufficient funds.
const debitWallet = `-- name: DebitWallet :one
UPDATE wallets
SET balance = balance - $2::numeric, updated_at = now()
WHERE user_id = $1 AND balance >= $2::numeric
RETURNING ` + walletColumns

type DebitWalletParams struct {
	UserID int64  `json:"user_id"`
	Amount string `json:"amount"`
}

func (q *Queries) DebitWallet(ctx context.Context, arg DebitWalletParams) (Wallet, error) {
	row := q.db.QueryRowContext(ctx, debitWallet, arg.UserID, arg.Amount)
	return scanWallet(row)
}

const updateWalletSettings = `-- name: UpdateWalletSettings :one
UPDATE wallets
SET type = COALESCE($2, type),
    lightning_address = COALESCE($3, lightning_address),
    updated_at = now()
WHERE user_id = $1
RETURNING ` + walletColumns

type UpdateWalletSettingsParams struct {
	UserID           int64          `json:"user_id"`
	Type             sql.NullString `json:"type"`
	LightningAddress sql.NullString `json:"lightning_address"`
}

func (q *Queries) UpdateWalletSettings(ctx context.Context, arg UpdateWalletSettingsParams) (Wallet, error) {
	row := q.db.QueryRowContext(ctx, updateWalletSettings, arg.UserID, arg.Type, arg.LightningAddress)
	return scanWallet(row)
}
