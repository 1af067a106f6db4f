package db

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewStore(conn), mock
}

func walletRow(userID int64, balance string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "user_id", "type", "lightning_address", "balance",
		"confirmed_balance", "unconfirmed_balance", "created_at", "updated_at",
	}).AddRow(uuid.New().String(), userID, "personal", nil, balance, "0", "0", now, now)
}

func TestDebitWalletGuardsBalanceInSQL(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND balance >= $2::numeric")).
		WithArgs(int64(7), "250").
		WillReturnRows(walletRow(7, "750"))

	w, err := store.DebitWallet(context.Background(), DebitWalletParams{UserID: 7, Amount: "250"})
	require.NoError(t, err)
	require.Equal(t, "750", w.Balance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitWalletNoRowsWhenInsufficient(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE wallets")).
		WithArgs(int64(7), "2000").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.DebitWallet(context.Background(), DebitWalletParams{UserID: 7, Amount: "2000"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecTxCommitsOnSuccess(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SET balance = balance + $2::numeric")).
		WithArgs(int64(1), "100").
		WillReturnRows(walletRow(1, "100"))
	mock.ExpectCommit()

	err := store.ExecTx(context.Background(), func(q Querier) error {
		_, err := q.CreditWallet(context.Background(), CreditWalletParams{UserID: 1, Amount: "100"})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecTxRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.ExecTx(context.Background(), func(q Querier) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDuplicateEntry(t *testing.T) {
	require.True(t, IsDuplicateEntry(&pq.Error{Code: DuplicateEntry}))
	require.False(t, IsDuplicateEntry(&pq.Error{Code: CheckViolation}))
	require.False(t, IsDuplicateEntry(errors.New("plain")))
}

func TestTransactionStatsSumSatoshis(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Now().AddDate(0, 0, -7)

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(amount_sats), 0)::bigint AS total_sats")).
		WithArgs(int64(7), since).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "total_sats"}).
			AddRow(TransactionStatusCompleted, int64(2), int64(17407)).
			AddRow(TransactionStatusFailed, int64(1), int64(296)))

	rows, err := store.GetTransactionStats(context.Background(), GetTransactionStatsParams{UserID: 7, Since: since})
	require.NoError(t, err)
	require.Equal(t, []GetTransactionStatsRow{
		{Status: TransactionStatusCompleted, Count: 2, TotalSats: 17407},
		{Status: TransactionStatusFailed, Count: 1, TotalSats: 296},
	}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordLightningPaymentRequiresClaimedSettlement(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("AND settlement_started_at IS NOT NULL")).
		WithArgs(id, "0102", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.RecordLightningPayment(context.Background(), RecordLightningPaymentParams{
		ID:                id,
		LightningPreimage: sql.NullString{String: "0102", Valid: true},
		LightningFeeSats:  2,
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOrphanedCollectionKeepsFirstCheckout(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("AND mpesa_checkout_request_id IS NULL")).
		WithArgs(id, "ws_1", "mr_1", int64(1000), "collection requested late").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.RecordOrphanedCollection(context.Background(), RecordOrphanedCollectionParams{
		ID:                     id,
		MpesaCheckoutRequestID: "ws_1",
		MpesaMerchantRequestID: "mr_1",
		MpesaAmount:            1000,
		ErrorMessage:           "collection requested late",
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
