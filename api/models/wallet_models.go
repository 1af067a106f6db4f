package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateWalletRequest struct {
	Type             string `json:"type" binding:"omitempty,oneof=personal business savings"`
	LightningAddress string `json:"lightning_address" binding:"omitempty,max=255"`
}

type UpdateWalletSettingsRequest struct {
	Type             *string `json:"type" binding:"omitempty,oneof=personal business savings"`
	LightningAddress *string `json:"lightning_address" binding:"omitempty,max=255"`
}

type TransactionHistoryQuery struct {
	Page   int32  `form:"page"`
	Limit  int32  `form:"limit"`
	Status string `form:"status"`
}

type StatsQuery struct {
	Days int `form:"days"`
}

type WalletResponse struct {
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

type TransactionHistoryResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Page         int32                 `json:"page"`
	Limit        int32                 `json:"limit"`
	Total        int64                 `json:"total"`
	TotalPages   int64                 `json:"total_pages"`
}
