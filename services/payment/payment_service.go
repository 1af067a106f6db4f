package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	db "github.com/SwiftFiat/SwiftFiat-Settlement/db/sqlc"
	"github.com/SwiftFiat/SwiftFiat-Settlement/models"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers/mobilemoney"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/currency"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/lock"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/metrics"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/notification"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/wallet"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sqlc-dev/pqtype"
)

// PaymentService drives a transaction from PENDING to a terminal state.
// Initiation is serialized per user by a distributed lock; settlement is
// keyed on the M-Pesa checkout id and guarded by conditional updates.
type PaymentService struct {
	store      db.Store
	locker     Locker
	wallets    *wallet.WalletService
	currency   *currency.CurrencyService
	node       LightningNode
	gateway    MobileMoneyGateway
	notifier   notification.Notifier
	references *ReferenceEncoder
	validate   *validator.Validate
	logger     *logging.Logger
	metrics    *metrics.Metrics
	config     Config
}

type Dependencies struct {
	Store      db.Store
	Locker     Locker
	Wallets    *wallet.WalletService
	Currency   *currency.CurrencyService
	Node       LightningNode
	Gateway    MobileMoneyGateway
	Notifier   notification.Notifier
	References *ReferenceEncoder
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
}

func NewPaymentService(deps Dependencies, config Config) *PaymentService {
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	if config.InvoiceExpiry <= 0 {
		config.InvoiceExpiry = DefaultInvoiceExpiry
	}
	// Initiation holds the lock for at most two TTLs: the initial grant and
	// one extension before the collection request.
	if floor := 2 * config.LockTTL; config.StaleAfter < floor {
		config.StaleAfter = max(DefaultStaleAfter, floor)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		d, ok := v.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})

	return &PaymentService{
		store:      deps.Store,
		locker:     deps.Locker,
		wallets:    deps.Wallets,
		currency:   deps.Currency,
		node:       deps.Node,
		gateway:    deps.Gateway,
		notifier:   deps.Notifier,
		references: deps.References,
		validate:   validate,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		config:     config,
	}
}

// Initiate creates a transaction, issues its Lightning invoice and asks the
// payer to authorise the M-Pesa collection. On success the transaction is
// PROCESSING and waits for the gateway callback.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if err := s.validateRequest(&req); err != nil {
		s.metrics.PaymentInitiated("invalid")
		return nil, err
	}

	// The pipeline runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	key := lock.PaymentLockKey(req.UserID)
	held, ok, err := s.locker.Acquire(ctx, key, s.config.LockTTL)
	if err != nil {
		s.metrics.PaymentInitiated("lock_error")
		return nil, models.NewDatabaseError("payment lock unavailable", err)
	}
	if !ok {
		s.metrics.PaymentInitiated("in_progress")
		return nil, models.NewConflictError("").WithCause(ErrPaymentInProgress)
	}
	defer func() {
		released, err := held.Release(ctx)
		if err != nil || !released {
			fields := logrus.Fields{"key": key, "released": released}
			if err != nil {
				fields["error"] = err.Error()
			}
			s.logger.WithFields(fields).Warn("payment lock was not released cleanly")
		}
	}()

	result, err := s.initiate(ctx, req, held)
	if err != nil {
		s.metrics.PaymentInitiated("error")
		return nil, err
	}
	s.metrics.PaymentInitiated("ok")
	return result, nil
}

func (s *PaymentService) initiate(ctx context.Context, req InitiateRequest, held *lock.Lock) (*InitiateResult, error) {
	if _, err := s.wallets.GetWallet(ctx, req.UserID); err != nil {
		return nil, err
	}

	sats, err := s.currency.ToSatoshis(ctx, req.Amount, req.Currency)
	if err != nil {
		return nil, currencyError(err)
	}
	collect, err := s.currency.Convert(ctx, req.Amount, req.Currency, CollectionCurrency)
	if err != nil {
		return nil, currencyError(err)
	}
	collectAmount := collect.Round(0).IntPart()
	if collectAmount < 1 {
		return nil, models.NewValidationError("amount is below the minimum M-Pesa collection")
	}

	metadata, err := encodeMetadata(req.Metadata)
	if err != nil {
		return nil, models.NewValidationError("metadata must be a JSON object")
	}

	txn, err := s.store.CreateTransaction(ctx, db.CreateTransactionParams{
		ID:            uuid.New(),
		UserID:        req.UserID,
		MerchantID:    sql.NullString{String: req.MerchantID, Valid: req.MerchantID != ""},
		Amount:        req.Amount.String(),
		Currency:      req.Currency,
		AmountSats:    int64(sats),
		PaymentMethod: PaymentMethodMpesaLightning,
		Description:   req.Description,
		Payee:         req.Payee,
		PhoneNumber:   req.PhoneNumber,
		Metadata:      metadata,
	})
	if err != nil {
		return nil, models.NewDatabaseError("could not create transaction", err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID.String(),
		"user_id":        req.UserID,
	})

	reference, err := s.references.Encode(txn.ReferenceNo)
	if err != nil {
		s.fail(ctx, txn.ID, "could not derive payment reference", false)
		return nil, fmt.Errorf("encode reference: %w", err)
	}

	invoice, err := s.node.CreateInvoice(ctx, sats, invoiceMemo(req), s.config.InvoiceExpiry)
	if err != nil {
		log.WithField("error", err.Error()).Error("lightning invoice creation failed")
		s.fail(ctx, txn.ID, err.Error(), false)
		return nil, models.NewPaymentError("lightning", err)
	}

	if _, err := s.store.SetTransactionInvoice(ctx, db.SetTransactionInvoiceParams{
		ID:                   txn.ID,
		LightningInvoice:     invoice.PaymentRequest,
		LightningPaymentHash: invoice.PaymentHash,
	}); err != nil {
		return nil, s.transitionError(ctx, txn.ID, "attach invoice", err)
	}

	// The collection request can be slow; renew the lease so a cancellation
	// stays locked out until the checkout id is recorded.
	extended, err := held.Extend(ctx, s.config.LockTTL)
	if err != nil || !extended {
		fields := logrus.Fields{"extended": extended}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.WithFields(fields).Warn("payment lock lost before mpesa collection")
		s.fail(ctx, txn.ID, "payment lock lost before mpesa collection", false)
		if err != nil {
			return nil, models.NewDatabaseError("payment lock unavailable", err)
		}
		return nil, models.NewConflictError("").WithCause(ErrPaymentLockLost)
	}

	push, err := s.gateway.InitiateSTKPush(ctx, mobilemoney.STKPushParams{
		PhoneNumber:      req.PhoneNumber,
		Amount:           collectAmount,
		AccountReference: reference,
		Description:      req.Payee,
	})
	if err != nil {
		log.WithField("error", err.Error()).Error("mpesa collection request failed")
		s.fail(ctx, txn.ID, err.Error(), false)
		if models.IsAuthentication(err) {
			return nil, err
		}
		return nil, models.NewPaymentError("mpesa", err)
	}

	if _, err := s.store.MarkTransactionProcessing(ctx, db.MarkTransactionProcessingParams{
		ID:                     txn.ID,
		MpesaCheckoutRequestID: push.CheckoutRequestID,
		MpesaMerchantRequestID: push.MerchantRequestID,
		MpesaAmount:            collectAmount,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.orphanedCollection(ctx, txn, push, collectAmount)
		}
		return nil, s.transitionError(ctx, txn.ID, "mark processing", err)
	}

	log.WithFields(logrus.Fields{
		"checkout_request_id": push.CheckoutRequestID,
		"payment_hash":        invoice.PaymentHash,
		"amount_sats":         int64(sats),
	}).Info("payment initiated")

	return &InitiateResult{
		TransactionID:     txn.ID,
		CheckoutRequestID: push.CheckoutRequestID,
		PaymentRequest:    invoice.PaymentRequest,
		PaymentHash:       invoice.PaymentHash,
		AmountSats:        int64(sats),
		Reference:         reference,
		ExpiresAt:         invoice.ExpiresAt,
	}, nil
}

// orphanedCollection keeps the checkout id of a collection that was
// requested after the transaction had already left PENDING, so the payer's
// money can be traced when the callback arrives.
func (s *PaymentService) orphanedCollection(ctx context.Context, txn db.Transaction, push *mobilemoney.STKPushResponse, collectAmount int64) {
	const reason = "mpesa collection requested after the transaction left PENDING"
	recorded, err := s.store.RecordOrphanedCollection(ctx, db.RecordOrphanedCollectionParams{
		ID:                     txn.ID,
		MpesaCheckoutRequestID: push.CheckoutRequestID,
		MpesaMerchantRequestID: push.MerchantRequestID,
		MpesaAmount:            collectAmount,
		ErrorMessage:           reason,
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"transaction_id":      txn.ID.String(),
			"checkout_request_id": push.CheckoutRequestID,
			"error":               err.Error(),
		}).Error("could not record orphaned mpesa collection")
		recorded = txn
		recorded.MpesaCheckoutRequestID = sql.NullString{String: push.CheckoutRequestID, Valid: true}
	}
	s.metrics.ReconciliationRequired()
	s.flag(ctx, recorded, "mpesa collection requested for a transaction that will not settle", reason, nil)
}

// Cancel moves a PENDING transaction owned by userID to CANCELLED. It is
// refused while an initiation for the same user holds the payment lock.
func (s *PaymentService) Cancel(ctx context.Context, transactionID uuid.UUID, userID int64) (*db.Transaction, error) {
	txn, err := s.GetTransaction(ctx, transactionID, userID)
	if err != nil {
		return nil, err
	}
	if txn.Status != db.TransactionStatusPending {
		return nil, cannotCancel(txn.Status)
	}

	key := lock.PaymentLockKey(userID)
	held, ok, err := s.locker.Acquire(ctx, key, s.config.LockTTL)
	if err != nil {
		return nil, models.NewDatabaseError("payment lock unavailable", err)
	}
	if !ok {
		return nil, models.NewConflictError("").WithCause(ErrPaymentInProgress)
	}
	defer func() {
		if _, err := held.Release(ctx); err != nil {
			s.logger.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("payment lock was not released cleanly")
		}
	}()

	metadata, _ := json.Marshal(map[string]interface{}{
		"cancelled_by": userID,
		"cancelled_at": time.Now().UTC().Format(time.RFC3339),
	})
	cancelled, err := s.store.CancelTransaction(ctx, db.CancelTransactionParams{
		ID:       transactionID,
		UserID:   userID,
		Metadata: pqtype.NullRawMessage{RawMessage: metadata, Valid: true},
	})
	if errors.Is(err, sql.ErrNoRows) {
		// Lost a race with initiation or settlement.
		current, getErr := s.store.GetTransaction(ctx, transactionID)
		if getErr != nil {
			return nil, models.NewDatabaseError("could not reload transaction", getErr)
		}
		return nil, cannotCancel(current.Status)
	}
	if err != nil {
		return nil, models.NewDatabaseError("could not cancel transaction", err)
	}

	s.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID.String(),
		"user_id":        userID,
	}).Info("transaction cancelled")
	return &cancelled, nil
}

// GetTransaction returns the transaction if userID owns it.
func (s *PaymentService) GetTransaction(ctx context.Context, transactionID uuid.UUID, userID int64) (*db.Transaction, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && txn.UserID != userID) {
		return nil, models.NewNotFoundError("").WithCause(ErrTransactionNotFound)
	}
	if err != nil {
		return nil, models.NewDatabaseError("could not load transaction", err)
	}
	return &txn, nil
}

// ExpireStale fails transactions abandoned in PENDING, typically by a
// process that died between creating the row and handing it to M-Pesa.
func (s *PaymentService) ExpireStale(ctx context.Context) (int, error) {
	expired, err := s.store.ExpireStalePendingTransactions(ctx, db.ExpireStalePendingTransactionsParams{
		CreatedBefore: time.Now().Add(-s.config.StaleAfter),
		ErrorMessage:  "initiation did not complete",
	})
	if err != nil {
		return 0, fmt.Errorf("expire stale transactions: %w", err)
	}
	for _, txn := range expired {
		s.logger.WithFields(logrus.Fields{
			"transaction_id": txn.ID.String(),
			"user_id":        txn.UserID,
			"created_at":     txn.CreatedAt,
		}).Warn("expired stale pending transaction")
	}
	return len(expired), nil
}

func (s *PaymentService) validateRequest(req *InitiateRequest) error {
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Payee = strings.TrimSpace(req.Payee)

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
			}
			return models.NewValidationError(strings.Join(msgs, "; "))
		}
		return models.NewValidationError(err.Error())
	}
	if !req.Amount.IsPositive() {
		return models.NewValidationError("Amount failed on gt")
	}

	phone, err := mobilemoney.NormalizePhoneNumber(req.PhoneNumber)
	if err != nil {
		return models.NewValidationError(err.Error())
	}
	req.PhoneNumber = phone
	return nil
}

// fail records a terminal failure. Errors are logged; the caller is already
// on an error path.
func (s *PaymentService) fail(ctx context.Context, id uuid.UUID, message string, reconcile bool) {
	_, err := s.store.FailTransaction(ctx, db.FailTransactionParams{
		ID:                     id,
		ErrorMessage:           message,
		ReconciliationRequired: reconcile,
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"transaction_id": id.String(),
			"error":          err.Error(),
		}).Error("could not mark transaction failed")
	}
}

// transitionError handles a conditional update that did not apply during
// initiation. No rows means the transaction left PENDING underneath us,
// which only a cancellation can do.
func (s *PaymentService) transitionError(ctx context.Context, id uuid.UUID, step string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.WithFields(logrus.Fields{
			"transaction_id": id.String(),
			"step":           step,
		}).Warn("transaction changed state during initiation")
		return models.NewConflictError("").WithCause(ErrCancelledDuringInit)
	}
	s.fail(ctx, id, step+": "+err.Error(), false)
	return models.NewDatabaseError("could not "+step, err)
}

func cannotCancel(status string) error {
	return models.NewValidationError(fmt.Sprintf("%v: transaction is %s", ErrCannotCancel, status)).WithCause(ErrCannotCancel)
}

func currencyError(err error) error {
	switch {
	case errors.Is(err, currency.ErrUnsupportedCurrency), errors.Is(err, currency.ErrAmountBelowMinimum):
		return models.NewValidationError(err.Error())
	}
	return models.NewDatabaseError("exchange rate unavailable", err)
}

func invoiceMemo(req InitiateRequest) string {
	if req.Description != "" {
		return fmt.Sprintf("Payment to %s: %s", req.Payee, req.Description)
	}
	return "Payment to " + req.Payee
}

func encodeMetadata(m map[string]interface{}) (pqtype.NullRawMessage, error) {
	if len(m) == 0 {
		return pqtype.NullRawMessage{RawMessage: []byte("{}"), Valid: true}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}
