package activitylogs

import (
	"context"
	"encoding/json"

	db "github.com/SwiftFiat/SwiftFiat-Settlement/db/sqlc"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/sirupsen/logrus"
	"github.com/sqlc-dev/pqtype"
)

// Audit actions written by the ledger.
const (
	ActionWalletCreated  = "WALLET_CREATED"
	ActionWalletCredit   = "WALLET_CREDIT"
	ActionWalletDebit    = "WALLET_DEBIT"
	ActionWalletSettings = "WALLET_SETTINGS_UPDATED"
)

// ActivityLog is the append-only audit trail. Writes are best effort and
// never fail the operation being audited.
type ActivityLog struct {
	store  db.Querier
	logger *logging.Logger
}

func NewActivityLog(store db.Querier, logger *logging.Logger) *ActivityLog {
	return &ActivityLog{
		store:  store,
		logger: logger,
	}
}

// Record writes outside any open DB transaction; ledger callers record after
// commit so a failed insert cannot abort the money movement.
func (a *ActivityLog) Record(ctx context.Context, userID int64, action string, details map[string]interface{}) {
	fields := logrus.Fields{
		"user_id": userID,
		"action":  action,
	}

	raw, err := json.Marshal(details)
	if err != nil {
		fields["error"] = err.Error()
		a.logger.WithFields(fields).Warn("could not encode audit details")
		raw = nil
	}

	_, err = a.store.CreateAuditLog(ctx, db.CreateAuditLogParams{
		UserID:  userID,
		Action:  action,
		Details: pqtype.NullRawMessage{RawMessage: raw, Valid: raw != nil},
	})
	if err != nil {
		fields["error"] = err.Error()
		a.logger.WithFields(fields).Warn("failed to write audit log")
	}
}

func (a *ActivityLog) GetByUser(ctx context.Context, userID int64, limit, offset int32) ([]db.AuditLog, error) {
	return a.store.ListAuditLogsByUser(ctx, db.ListAuditLogsByUserParams{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
}
