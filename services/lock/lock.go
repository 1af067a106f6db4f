package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrInvalidTTL = errors.New("lock ttl must be positive")

// releaseScript deletes the key only while it still carries our token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end`

// PaymentLockKey derives the lock key for payment initiation. It depends on
// the user alone so that concurrent initiations for one user contend.
func PaymentLockKey(userID int64) string {
	return fmt.Sprintf("payment-lock:%d", userID)
}

type Locker struct {
	client  redis.Cmdable
	logger  *logging.Logger
	metrics *metrics.Metrics
}

func NewLocker(client redis.Cmdable, logger *logging.Logger, m *metrics.Metrics) *Locker {
	return &Locker{
		client:  client,
		logger:  logger,
		metrics: m,
	}
}

// Lock is a held lock entry. It expires on its own after the TTL if never
// released.
type Lock struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

func (l *Lock) Key() string { return l.key }

// Acquire tries once to take key for ttl. It returns (nil, false, nil) when
// another holder has it and (nil, false, err) when the store is unreachable,
// in which case callers must treat the lock as not acquired.
func (lk *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}

	token := uuid.NewString()
	ok, err := lk.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		lk.metrics.LockAcquisition("error")
		lk.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Error("lock store unavailable")
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		lk.metrics.LockAcquisition("contended")
		lk.logger.WithField("key", key).Info("lock already held")
		return nil, false, nil
	}

	lk.metrics.LockAcquisition("acquired")
	lk.logger.WithFields(logrus.Fields{
		"key": key,
		"ttl": ttl.String(),
	}).Debug("lock acquired")

	return &Lock{
		client: lk.client,
		key:    key,
		token:  token,
		ttl:    ttl,
	}, true, nil
}

// Release deletes the entry if this lock still owns it. It reports false
// when the entry had already expired or been taken over.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	res, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return res == 1, nil
}

// Extend resets the TTL if this lock still owns the entry.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, ErrInvalidTTL
	}
	res, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if res == 1 {
		l.ttl = ttl
	}
	return res == 1, nil
}
