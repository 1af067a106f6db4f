// Package mockdb is an in-memory db.Store for service tests. It mirrors the
// conditional updates of the SQL queries so state-machine guards behave the
// same way they do against postgres.
package mockdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	db "github.com/SwiftFiat/SwiftFiat-Settlement/db/sqlc"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"
)

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	wallets      map[int64]db.Wallet
	transactions map[uuid.UUID]db.Transaction
	auditLogs    []db.AuditLog
	nextRef      int64

	// Errors forces the named method to fail with the given error.
	Errors map[string]error
	// Calls counts invocations per method name.
	Calls map[string]int
}

var _ db.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		wallets:      make(map[int64]db.Wallet),
		transactions: make(map[uuid.UUID]db.Transaction),
		Errors:       make(map[string]error),
		Calls:        make(map[string]int),
	}
}

func (s *Store) enter(method string) error {
	s.Calls[method]++
	return s.Errors[method]
}

// ExecTx runs fq against the store and restores the previous state if it
// fails. Transactions are serialized.
func (s *Store) ExecTx(ctx context.Context, fq func(q db.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	walletsSnapshot := make(map[int64]db.Wallet, len(s.wallets))
	for k, v := range s.wallets {
		walletsSnapshot[k] = v
	}
	txSnapshot := make(map[uuid.UUID]db.Transaction, len(s.transactions))
	for k, v := range s.transactions {
		txSnapshot[k] = v
	}
	auditSnapshot := append([]db.AuditLog(nil), s.auditLogs...)
	s.mu.Unlock()

	if err := fq(s); err != nil {
		s.mu.Lock()
		s.wallets = walletsSnapshot
		s.transactions = txSnapshot
		s.auditLogs = auditSnapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// ---- audit logs

func (s *Store) CreateAuditLog(ctx context.Context, arg db.CreateAuditLogParams) (db.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateAuditLog"); err != nil {
		return db.AuditLog{}, err
	}
	entry := db.AuditLog{
		ID:        int64(len(s.auditLogs) + 1),
		UserID:    arg.UserID,
		Action:    arg.Action,
		Details:   arg.Details,
		CreatedAt: time.Now(),
	}
	s.auditLogs = append(s.auditLogs, entry)
	return entry, nil
}

func (s *Store) ListAuditLogsByUser(ctx context.Context, arg db.ListAuditLogsByUserParams) ([]db.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListAuditLogsByUser"); err != nil {
		return nil, err
	}
	var out []db.AuditLog
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		if s.auditLogs[i].UserID == arg.UserID {
			out = append(out, s.auditLogs[i])
		}
	}
	return page(out, arg.Limit, arg.Offset), nil
}

// AuditLogs returns every recorded audit entry in insertion order.
func (s *Store) AuditLogs() []db.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.AuditLog(nil), s.auditLogs...)
}

// ---- transactions

func (s *Store) CreateTransaction(ctx context.Context, arg db.CreateTransactionParams) (db.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateTransaction"); err != nil {
		return db.Transaction{}, err
	}
	if _, exists := s.transactions[arg.ID]; exists {
		return db.Transaction{}, &pq.Error{Code: db.DuplicateEntry}
	}
	s.nextRef++
	now := time.Now()
	t := db.Transaction{
		ID:            arg.ID,
		ReferenceNo:   s.nextRef,
		UserID:        arg.UserID,
		MerchantID:    arg.MerchantID,
		Amount:        arg.Amount,
		Currency:      arg.Currency,
		AmountSats:    arg.AmountSats,
		PaymentMethod: arg.PaymentMethod,
		Description:   arg.Description,
		Payee:         arg.Payee,
		PhoneNumber:   arg.PhoneNumber,
		Metadata:      arg.Metadata,
		Status:        db.TransactionStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (db.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetTransaction"); err != nil {
		return db.Transaction{}, err
	}
	t, ok := s.transactions[id]
	if !ok {
		return db.Transaction{}, sql.ErrNoRows
	}
	return t, nil
}

func (s *Store) GetTransactionByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (db.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetTransactionByCheckoutRequestID"); err != nil {
		return db.Transaction{}, err
	}
	for _, t := range s.transactions {
		if t.MpesaCheckoutRequestID.Valid && t.MpesaCheckoutRequestID.String == checkoutRequestID {
			return t, nil
		}
	}
	return db.Transaction{}, sql.ErrNoRows
}

// update applies fn to the transaction when guard accepts it, mirroring an
// UPDATE ... WHERE ... RETURNING statement.
func (s *Store) update(method string, id uuid.UUID, guard func(db.Transaction) bool, fn func(*db.Transaction)) (db.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(method); err != nil {
		return db.Transaction{}, err
	}
	t, ok := s.transactions[id]
	if !ok || !guard(t) {
		return db.Transaction{}, sql.ErrNoRows
	}
	fn(&t)
	t.UpdatedAt = time.Now()
	s.transactions[id] = t
	return t, nil
}

func (s *Store) SetTransactionInvoice(ctx context.Context, arg db.SetTransactionInvoiceParams) (db.Transaction, error) {
	return s.update("SetTransactionInvoice", arg.ID,
		func(t db.Transaction) bool { return t.Status == db.TransactionStatusPending },
		func(t *db.Transaction) {
			t.LightningInvoice = sql.NullString{String: arg.LightningInvoice, Valid: true}
			t.LightningPaymentHash = sql.NullString{String: arg.LightningPaymentHash, Valid: true}
		})
}

func (s *Store) MarkTransactionProcessing(ctx context.Context, arg db.MarkTransactionProcessingParams) (db.Transaction, error) {
	return s.update("MarkTransactionProcessing", arg.ID,
		func(t db.Transaction) bool {
			return t.Status == db.TransactionStatusPending && t.LightningInvoice.Valid
		},
		func(t *db.Transaction) {
			t.Status = db.TransactionStatusProcessing
			t.MpesaCheckoutRequestID = sql.NullString{String: arg.MpesaCheckoutRequestID, Valid: true}
			t.MpesaMerchantRequestID = sql.NullString{String: arg.MpesaMerchantRequestID, Valid: arg.MpesaMerchantRequestID != ""}
			t.MpesaAmount = arg.MpesaAmount
		})
}

func (s *Store) RecordOrphanedCollection(ctx context.Context, arg db.RecordOrphanedCollectionParams) (db.Transaction, error) {
	return s.update("RecordOrphanedCollection", arg.ID,
		func(t db.Transaction) bool {
			return t.Status != db.TransactionStatusProcessing && !t.MpesaCheckoutRequestID.Valid
		},
		func(t *db.Transaction) {
			t.MpesaCheckoutRequestID = sql.NullString{String: arg.MpesaCheckoutRequestID, Valid: true}
			t.MpesaMerchantRequestID = sql.NullString{String: arg.MpesaMerchantRequestID, Valid: arg.MpesaMerchantRequestID != ""}
			t.MpesaAmount = arg.MpesaAmount
			t.ErrorMessage = sql.NullString{String: arg.ErrorMessage, Valid: true}
			t.ReconciliationRequired = true
		})
}

func (s *Store) RecordLightningPayment(ctx context.Context, arg db.RecordLightningPaymentParams) (db.Transaction, error) {
	return s.update("RecordLightningPayment", arg.ID,
		func(t db.Transaction) bool {
			return t.Status == db.TransactionStatusProcessing && t.SettlementStartedAt.Valid
		},
		func(t *db.Transaction) {
			t.LightningPreimage = arg.LightningPreimage
			t.LightningFeeSats = arg.LightningFeeSats
		})
}

func (s *Store) ClaimTransactionSettlement(ctx context.Context, arg db.ClaimTransactionSettlementParams) (db.Transaction, error) {
	return s.update("ClaimTransactionSettlement", arg.ID,
		func(t db.Transaction) bool {
			return t.Status == db.TransactionStatusProcessing && !t.SettlementStartedAt.Valid
		},
		func(t *db.Transaction) {
			t.SettlementStartedAt = sql.NullTime{Time: time.Now(), Valid: true}
			if arg.MpesaReceiptNumber.Valid {
				t.MpesaReceiptNumber = arg.MpesaReceiptNumber
			}
		})
}

func (s *Store) CompleteTransaction(ctx context.Context, arg db.CompleteTransactionParams) (db.Transaction, error) {
	return s.update("CompleteTransaction", arg.ID,
		func(t db.Transaction) bool { return t.Status == db.TransactionStatusProcessing },
		func(t *db.Transaction) {
			t.Status = db.TransactionStatusCompleted
			t.LightningPreimage = arg.LightningPreimage
			t.LightningFeeSats = arg.LightningFeeSats
			t.CompletedAt = sql.NullTime{Time: time.Now(), Valid: true}
		})
}

func (s *Store) FailTransaction(ctx context.Context, arg db.FailTransactionParams) (db.Transaction, error) {
	return s.update("FailTransaction", arg.ID,
		func(t db.Transaction) bool {
			return t.Status == db.TransactionStatusPending || t.Status == db.TransactionStatusProcessing
		},
		func(t *db.Transaction) {
			t.Status = db.TransactionStatusFailed
			t.ErrorMessage = sql.NullString{String: arg.ErrorMessage, Valid: true}
			t.ReconciliationRequired = arg.ReconciliationRequired
		})
}

func (s *Store) CancelTransaction(ctx context.Context, arg db.CancelTransactionParams) (db.Transaction, error) {
	return s.update("CancelTransaction", arg.ID,
		func(t db.Transaction) bool {
			return t.Status == db.TransactionStatusPending && t.UserID == arg.UserID
		},
		func(t *db.Transaction) {
			t.Status = db.TransactionStatusCancelled
			t.Metadata = mergeJSON(t.Metadata, arg.Metadata)
		})
}

func (s *Store) ExpireStalePendingTransactions(ctx context.Context, arg db.ExpireStalePendingTransactionsParams) ([]db.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ExpireStalePendingTransactions"); err != nil {
		return nil, err
	}
	expired := []db.Transaction{}
	for id, t := range s.transactions {
		if t.Status != db.TransactionStatusPending || !t.CreatedAt.Before(arg.CreatedBefore) {
			continue
		}
		t.Status = db.TransactionStatusFailed
		t.ErrorMessage = sql.NullString{String: arg.ErrorMessage, Valid: true}
		t.UpdatedAt = time.Now()
		s.transactions[id] = t
		expired = append(expired, t)
	}
	return expired, nil
}

func (s *Store) userTransactions(userID int64, status sql.NullString) []db.Transaction {
	var out []db.Transaction
	for _, t := range s.transactions {
		if t.UserID != userID {
			continue
		}
		if status.Valid && t.Status != status.String {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReferenceNo > out[j].ReferenceNo })
	return out
}

func (s *Store) ListTransactionsByUser(ctx context.Context, arg db.ListTransactionsByUserParams) ([]db.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListTransactionsByUser"); err != nil {
		return nil, err
	}
	return page(s.userTransactions(arg.UserID, arg.Status), arg.Limit, arg.Offset), nil
}

func (s *Store) CountTransactionsByUser(ctx context.Context, arg db.CountTransactionsByUserParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CountTransactionsByUser"); err != nil {
		return 0, err
	}
	return int64(len(s.userTransactions(arg.UserID, arg.Status))), nil
}

func (s *Store) GetTransactionStats(ctx context.Context, arg db.GetTransactionStatsParams) ([]db.GetTransactionStatsRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetTransactionStats"); err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	totals := map[string]int64{}
	for _, t := range s.userTransactions(arg.UserID, sql.NullString{}) {
		if t.CreatedAt.Before(arg.Since) {
			continue
		}
		counts[t.Status]++
		totals[t.Status] += t.AmountSats
	}
	var rows []db.GetTransactionStatsRow
	for status, count := range counts {
		rows = append(rows, db.GetTransactionStatsRow{Status: status, Count: count, TotalSats: totals[status]})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Status < rows[j].Status })
	return rows, nil
}

// PutTransaction stores t as-is; tests use it to arrange arbitrary states.
func (s *Store) PutTransaction(t db.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ReferenceNo == 0 {
		s.nextRef++
		t.ReferenceNo = s.nextRef
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.transactions[t.ID] = t
}

// ---- wallets

func (s *Store) CreateWallet(ctx context.Context, arg db.CreateWalletParams) (db.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateWallet"); err != nil {
		return db.Wallet{}, err
	}
	if _, exists := s.wallets[arg.UserID]; exists {
		return db.Wallet{}, &pq.Error{Code: db.DuplicateEntry, Message: "duplicate key value violates unique constraint \"wallets_user_id_key\""}
	}
	now := time.Now()
	w := db.Wallet{
		ID:                 uuid.New(),
		UserID:             arg.UserID,
		Type:               arg.Type,
		LightningAddress:   arg.LightningAddress,
		Balance:            "0",
		ConfirmedBalance:   "0",
		UnconfirmedBalance: "0",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.wallets[arg.UserID] = w
	return w, nil
}

func (s *Store) GetWalletByUserID(ctx context.Context, userID int64) (db.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetWalletByUserID"); err != nil {
		return db.Wallet{}, err
	}
	w, ok := s.wallets[userID]
	if !ok {
		return db.Wallet{}, sql.ErrNoRows
	}
	return w, nil
}

func (s *Store) CreditWallet(ctx context.Context, arg db.CreditWalletParams) (db.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreditWallet"); err != nil {
		return db.Wallet{}, err
	}
	w, ok := s.wallets[arg.UserID]
	if !ok {
		return db.Wallet{}, sql.ErrNoRows
	}
	balance := decimal.RequireFromString(w.Balance).Add(decimal.RequireFromString(arg.Amount))
	w.Balance = balance.String()
	w.UpdatedAt = time.Now()
	s.wallets[arg.UserID] = w
	return w, nil
}

func (s *Store) DebitWallet(ctx context.Context, arg db.DebitWalletParams) (db.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DebitWallet"); err != nil {
		return db.Wallet{}, err
	}
	w, ok := s.wallets[arg.UserID]
	if !ok {
		return db.Wallet{}, sql.ErrNoRows
	}
	balance := decimal.RequireFromString(w.Balance)
	amount := decimal.RequireFromString(arg.Amount)
	if balance.LessThan(amount) {
		return db.Wallet{}, sql.ErrNoRows
	}
	w.Balance = balance.Sub(amount).String()
	w.UpdatedAt = time.Now()
	s.wallets[arg.UserID] = w
	return w, nil
}

func (s *Store) UpdateWalletSettings(ctx context.Context, arg db.UpdateWalletSettingsParams) (db.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateWalletSettings"); err != nil {
		return db.Wallet{}, err
	}
	w, ok := s.wallets[arg.UserID]
	if !ok {
		return db.Wallet{}, sql.ErrNoRows
	}
	if arg.Type.Valid {
		w.Type = arg.Type.String
	}
	if arg.LightningAddress.Valid {
		w.LightningAddress = arg.LightningAddress
	}
	w.UpdatedAt = time.Now()
	s.wallets[arg.UserID] = w
	return w, nil
}

func page[T any](items []T, limit, offset int32) []T {
	if int(offset) >= len(items) {
		return []T{}
	}
	end := int(offset) + int(limit)
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func mergeJSON(base, patch pqtype.NullRawMessage) pqtype.NullRawMessage {
	merged := map[string]interface{}{}
	if base.Valid {
		_ = json.Unmarshal(base.RawMessage, &merged)
	}
	if patch.Valid {
		_ = json.Unmarshal(patch.RawMessage, &merged)
	}
	raw, _ := json.Marshal(merged)
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}
