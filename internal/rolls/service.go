package rolls

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultRetryBackoff   = 200 * time.Millisecond
	maxAttempts           = 2
)

var noOpLogger = zap.NewNop()

// ServiceConfig describes the dependencies of the roll service.
type ServiceConfig struct {
	Database       *gorm.DB
	Roller         Roller
	Clock          func() time.Time
	Logger         *zap.Logger
	RequestTimeout time.Duration
	RetryBackoff   time.Duration
}

// Service records dice rolls and reads roll history. A zero Service is safe
// to call: every operation reports rolls.<op>.missing_database.
type Service struct {
	db             *gorm.DB
	roller         Roller
	clock          func() time.Time
	logger         *zap.Logger
	requestTimeout time.Duration
	retryBackoff   time.Duration
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newPersistenceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	roller := cfg.Roller
	if roller == nil {
		roller = NewCryptoRoller()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	retryBackoff := cfg.RetryBackoff
	if retryBackoff < 0 {
		retryBackoff = defaultRetryBackoff
	}

	return &Service{
		db:             cfg.Database,
		roller:         roller,
		clock:          clock,
		logger:         logger,
		requestTimeout: requestTimeout,
		retryBackoff:   retryBackoff,
	}, nil
}

// Ping verifies the datastore connection is usable.
func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return newPersistenceError(opPingDatastore, "missing_database", errMissingDatabase)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return newPersistenceError(opPingDatastore, "handle_unavailable", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return newPersistenceError(opPingDatastore, "ping_failed", err)
	}
	return nil
}

// withRetry runs fn under the request timeout, retrying once after the
// backoff when the failure is transient.
func (s *Service) withRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == maxAttempts || !isTransient(err) {
			return err
		}
		s.loggerOrDefault().Warn("transient datastore failure, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(s.retryBackoff):
		}
	}
	return err
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08xxx connection exceptions, 57P01 admin shutdown.
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01"
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("rolls service error", attrs...)
}
