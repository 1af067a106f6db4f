package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	db "github.com/SwiftFiat/SwiftFiat-Settlement/db/sqlc"
	"github.com/SwiftFiat/SwiftFiat-Settlement/models"
	activitylogs "github.com/SwiftFiat/SwiftFiat-Settlement/services/activity_logs"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/metrics"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/redis"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBalanceCacheTTL = 5 * time.Minute

	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

func BalanceCacheKey(userID int64) string {
	return fmt.Sprintf("wallet:balance:%d", userID)
}

// WalletService owns every balance mutation. The cache is optional and only
// accelerates GetBalance; the relational store is the source of truth.
type WalletService struct {
	store    db.Store
	cache    redis.KeyValue
	audit    *activitylogs.ActivityLog
	logger   *logging.Logger
	metrics  *metrics.Metrics
	cacheTTL time.Duration
}

func NewWalletService(store db.Store, cache redis.KeyValue, audit *activitylogs.ActivityLog, logger *logging.Logger, m *metrics.Metrics, cacheTTL time.Duration) *WalletService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultBalanceCacheTTL
	}
	return &WalletService{
		store:    store,
		cache:    cache,
		audit:    audit,
		logger:   logger,
		metrics:  m,
		cacheTTL: cacheTTL,
	}
}

func (w *WalletService) CreateWallet(ctx context.Context, userID int64, walletType, lightningAddress string) (*WalletModel, error) {
	if walletType == "" {
		walletType = TypePersonal
	}
	if !ValidWalletType(walletType) {
		return nil, NewWalletError(ErrInvalidWalletType, userID, models.KindValidation)
	}

	dbWallet, err := w.store.CreateWallet(ctx, db.CreateWalletParams{
		UserID:           userID,
		Type:             walletType,
		LightningAddress: sql.NullString{String: lightningAddress, Valid: lightningAddress != ""},
	})
	if err != nil {
		if db.IsDuplicateEntry(err) {
			return nil, NewWalletError(ErrWalletExists, userID, models.KindValidation)
		}
		w.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Error("could not create wallet")
		return nil, models.NewDatabaseError("could not create wallet", err)
	}

	w.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"type":    walletType,
	}).Info("wallet created")
	w.audit.Record(ctx, userID, activitylogs.ActionWalletCreated, map[string]interface{}{
		"wallet_id": dbWallet.ID.String(),
		"type":      walletType,
	})

	return ToWalletModel(dbWallet), nil
}

func (w *WalletService) GetWallet(ctx context.Context, userID int64) (*WalletModel, error) {
	dbWallet, err := w.fetchWallet(ctx, w.store, userID)
	if err != nil {
		return nil, err
	}
	return ToWalletModel(dbWallet), nil
}

// GetBalance reads through the balance cache. Cache failures are logged and
// fall back to the store.
func (w *WalletService) GetBalance(ctx context.Context, userID int64) (*BalanceModel, error) {
	key := BalanceCacheKey(userID)

	if w.cache != nil {
		cached, err := w.cache.Get(ctx, key)
		switch {
		case err == nil:
			var balance BalanceModel
			if jsonErr := json.Unmarshal([]byte(cached), &balance); jsonErr == nil {
				return &balance, nil
			}
			w.logger.WithField("key", key).Warn("discarding unreadable cached balance")
		case !errors.Is(err, redis.ErrCacheMiss):
			w.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("balance cache read failed")
		}
	}

	dbWallet, err := w.fetchWallet(ctx, w.store, userID)
	if err != nil {
		return nil, err
	}
	balance := ToBalanceModel(dbWallet)

	if w.cache != nil {
		raw, _ := json.Marshal(balance)
		if err := w.cache.Set(ctx, key, string(raw), w.cacheTTL); err != nil {
			w.logger.WithFields(logrus.Fields{
				"key":   key,
				"error": err.Error(),
			}).Warn("balance cache write failed")
		}
	}

	return balance, nil
}

func (w *WalletService) Credit(ctx context.Context, userID int64, amount decimal.Decimal, metadata map[string]interface{}) (*OperationResult, error) {
	res, err := w.CreditWithQueries(ctx, w.store, userID, amount, metadata)
	if err != nil {
		return nil, err
	}
	w.Committed(ctx, res)
	return res, nil
}

// CreditWithQueries performs the credit through q, which may be bound to an
// open DB transaction. The caller must call Committed once q's transaction
// has committed.
func (w *WalletService) CreditWithQueries(ctx context.Context, q db.Querier, userID int64, amount decimal.Decimal, metadata map[string]interface{}) (*OperationResult, error) {
	if !amount.IsPositive() {
		return nil, NewWalletError(ErrInvalidAmount, userID, models.KindValidation)
	}

	dbWallet, err := q.CreditWallet(ctx, db.CreditWalletParams{
		UserID: userID,
		Amount: amount.String(),
	})
	if err != nil {
		w.metrics.WalletOperation(OperationCredit, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewWalletError(ErrWalletNotFound, userID, models.KindNotFound)
		}
		return nil, models.NewDatabaseError("could not credit wallet", err)
	}
	w.metrics.WalletOperation(OperationCredit, nil)

	newBalance := parseAmount(dbWallet.Balance)
	return &OperationResult{
		UserID:          userID,
		Operation:       OperationCredit,
		Amount:          amount,
		PreviousBalance: newBalance.Sub(amount),
		NewBalance:      newBalance,
		Metadata:        metadata,
	}, nil
}

// Debit subtracts amount only if the balance covers it. The check and the
// update are a single conditional statement.
func (w *WalletService) Debit(ctx context.Context, userID int64, amount decimal.Decimal, metadata map[string]interface{}) (*OperationResult, error) {
	if !amount.IsPositive() {
		return nil, NewWalletError(ErrInvalidAmount, userID, models.KindValidation)
	}

	dbWallet, err := w.store.DebitWallet(ctx, db.DebitWalletParams{
		UserID: userID,
		Amount: amount.String(),
	})
	if err != nil {
		w.metrics.WalletOperation(OperationDebit, err)
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, models.NewDatabaseError("could not debit wallet", err)
		}
		// No row matched: either there is no wallet or the guard refused.
		if _, lookupErr := w.fetchWallet(ctx, w.store, userID); lookupErr != nil {
			return nil, lookupErr
		}
		w.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  amount.String(),
		}).Info("debit rejected for insufficient funds")
		return nil, NewWalletError(ErrInsufficientFunds, userID, models.KindValidation)
	}
	w.metrics.WalletOperation(OperationDebit, nil)

	newBalance := parseAmount(dbWallet.Balance)
	res := &OperationResult{
		UserID:          userID,
		Operation:       OperationDebit,
		Amount:          amount,
		PreviousBalance: newBalance.Add(amount),
		NewBalance:      newBalance,
		Metadata:        metadata,
	}
	w.Committed(ctx, res)
	return res, nil
}

// Committed finishes a balance mutation once it is durable: the cached
// balance is dropped and an audit entry is appended.
func (w *WalletService) Committed(ctx context.Context, res *OperationResult) {
	w.InvalidateBalance(ctx, res.UserID)

	action := activitylogs.ActionWalletCredit
	if res.Operation == OperationDebit {
		action = activitylogs.ActionWalletDebit
	}
	w.audit.Record(ctx, res.UserID, action, map[string]interface{}{
		"operation":        res.Operation,
		"amount":           res.Amount.String(),
		"previous_balance": res.PreviousBalance.String(),
		"new_balance":      res.NewBalance.String(),
		"metadata":         res.Metadata,
	})
}

// UpdateSettings changes the wallet type and/or lightning address. Nil
// arguments are left untouched.
func (w *WalletService) UpdateSettings(ctx context.Context, userID int64, walletType, lightningAddress *string) (*WalletModel, error) {
	if walletType != nil && !ValidWalletType(*walletType) {
		return nil, NewWalletError(ErrInvalidWalletType, userID, models.KindValidation)
	}

	params := db.UpdateWalletSettingsParams{UserID: userID}
	if walletType != nil {
		params.Type = sql.NullString{String: *walletType, Valid: true}
	}
	if lightningAddress != nil {
		params.LightningAddress = sql.NullString{String: *lightningAddress, Valid: true}
	}

	dbWallet, err := w.store.UpdateWalletSettings(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewWalletError(ErrWalletNotFound, userID, models.KindNotFound)
		}
		return nil, models.NewDatabaseError("could not update wallet settings", err)
	}

	w.InvalidateBalance(ctx, userID)

	details := map[string]interface{}{}
	if walletType != nil {
		details["type"] = *walletType
	}
	if lightningAddress != nil {
		details["lightning_address"] = *lightningAddress
	}
	w.audit.Record(ctx, userID, activitylogs.ActionWalletSettings, details)

	return ToWalletModel(dbWallet), nil
}

// GetTransactionHistory pages through the user's transactions, newest first.
// status filters when non-empty.
func (w *WalletService) GetTransactionHistory(ctx context.Context, userID int64, page, limit int32, status string) (*TransactionHistory, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	statusFilter := sql.NullString{}
	if status != "" {
		if !validTransactionStatus(status) {
			return nil, NewWalletError(ErrInvalidStatus, userID, models.KindValidation)
		}
		statusFilter = sql.NullString{String: status, Valid: true}
	}

	txs, err := w.store.ListTransactionsByUser(ctx, db.ListTransactionsByUserParams{
		UserID: userID,
		Status: statusFilter,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, models.NewDatabaseError("could not list transactions", err)
	}

	total, err := w.store.CountTransactionsByUser(ctx, db.CountTransactionsByUserParams{
		UserID: userID,
		Status: statusFilter,
	})
	if err != nil {
		return nil, models.NewDatabaseError("could not count transactions", err)
	}

	return &TransactionHistory{
		Transactions: txs,
		Page:         page,
		Limit:        limit,
		Total:        total,
		TotalPages:   (total + int64(limit) - 1) / int64(limit),
	}, nil
}

// GetTransactionStats aggregates the user's transactions over the last 7, 30
// or 90 days.
func (w *WalletService) GetTransactionStats(ctx context.Context, userID int64, days int) (*TransactionStats, error) {
	switch days {
	case 7, 30, 90:
	default:
		return nil, NewWalletError(ErrInvalidStatsWindow, userID, models.KindValidation)
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := w.store.GetTransactionStats(ctx, db.GetTransactionStatsParams{
		UserID: userID,
		Since:  since,
	})
	if err != nil {
		return nil, models.NewDatabaseError("could not compute transaction stats", err)
	}

	stats := &TransactionStats{
		Days:     days,
		Since:    since,
		ByStatus: make(map[string]StatusStats, len(rows)),
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = StatusStats{Count: row.Count, TotalSats: row.TotalSats}
		stats.TotalCount += row.Count
		if row.Status == db.TransactionStatusCompleted {
			stats.CompletedSats = row.TotalSats
		}
	}
	return stats, nil
}

func (w *WalletService) InvalidateBalance(ctx context.Context, userID int64) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Delete(ctx, BalanceCacheKey(userID)); err != nil {
		w.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("could not invalidate cached balance")
	}
}

func (w *WalletService) fetchWallet(ctx context.Context, q db.Querier, userID int64) (db.Wallet, error) {
	dbWallet, err := q.GetWalletByUserID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Wallet{}, NewWalletError(ErrWalletNotFound, userID, models.KindNotFound)
	} else if err != nil {
		return db.Wallet{}, models.NewDatabaseError("could not load wallet", err)
	}
	return dbWallet, nil
}

func validTransactionStatus(status string) bool {
	switch status {
	case db.TransactionStatusPending, db.TransactionStatusProcessing,
		db.TransactionStatusCompleted, db.TransactionStatusFailed, db.TransactionStatusCancelled:
		return true
	}
	return false
}
