package wallet

import (
	"time"

	db "github.com/SwiftFiat/SwiftFiat-Settlement/db/sqlc"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TypePersonal = "personal"
	TypeBusiness = "business"
	TypeSavings  = "savings"
)

const (
	OperationCredit = "credit"
	OperationDebit  = "debit"
)

func ValidWalletType(t string) bool {
	switch t {
	case TypePersonal, TypeBusiness, TypeSavings:
		return true
	}
	return false
}

type WalletModel struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             int64           `json:"user_id"`
	Type               string          `json:"type"`
	LightningAddress   string          `json:"lightning_address,omitempty"`
	Balance            decimal.Decimal `json:"balance"`
	ConfirmedBalance   decimal.Decimal `json:"confirmed_balance"`
	UnconfirmedBalance decimal.Decimal `json:"unconfirmed_balance"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func ToWalletModel(wallet db.Wallet) *WalletModel {
	return &WalletModel{
		ID:                 wallet.ID,
		UserID:             wallet.UserID,
		Type:               wallet.Type,
		LightningAddress:   wallet.LightningAddress.String,
		Balance:            parseAmount(wallet.Balance),
		ConfirmedBalance:   parseAmount(wallet.ConfirmedBalance),
		UnconfirmedBalance: parseAmount(wallet.UnconfirmedBalance),
		CreatedAt:          wallet.CreatedAt,
		UpdatedAt:          wallet.UpdatedAt,
	}
}

// BalanceModel is what GetBalance returns and what the balance cache holds.
// TotalBalance is the spendable balance plus funds still awaiting
// confirmation.
type BalanceModel struct {
	UserID             int64           `json:"user_id"`
	Type               string          `json:"type"`
	Balance            decimal.Decimal `json:"balance"`
	ConfirmedBalance   decimal.Decimal `json:"confirmed_balance"`
	UnconfirmedBalance decimal.Decimal `json:"unconfirmed_balance"`
	TotalBalance       decimal.Decimal `json:"total_balance"`
}

func ToBalanceModel(wallet db.Wallet) *BalanceModel {
	m := ToWalletModel(wallet)
	return &BalanceModel{
		UserID:             m.UserID,
		Type:               m.Type,
		Balance:            m.Balance,
		ConfirmedBalance:   m.ConfirmedBalance,
		UnconfirmedBalance: m.UnconfirmedBalance,
		TotalBalance:       m.Balance.Add(m.UnconfirmedBalance),
	}
}

type OperationResult struct {
	UserID          int64                  `json:"user_id"`
	Operation       string                 `json:"operation"`
	Amount          decimal.Decimal        `json:"amount"`
	PreviousBalance decimal.Decimal        `json:"previous_balance"`
	NewBalance      decimal.Decimal        `json:"new_balance"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

type TransactionHistory struct {
	Transactions []db.Transaction `json:"transactions"`
	Page         int32            `json:"page"`
	Limit        int32            `json:"limit"`
	Total        int64            `json:"total"`
	TotalPages   int64            `json:"total_pages"`
}

// StatusStats totals are in satoshis so transactions charged in different
// fiat currencies add up.
type StatusStats struct {
	Count     int64 `json:"count"`
	TotalSats int64 `json:"total_sats"`
}

type TransactionStats struct {
	Days            int                    `json:"days"`
	Since           time.Time              `json:"since"`
	TotalCount      int64                  `json:"total_count"`
	CompletedSats   int64                  `json:"completed_sats"`
	ByStatus        map[string]StatusStats `json:"by_status"`
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
