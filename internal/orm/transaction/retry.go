package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is the default number of attempts of a transaction
	DefaultMaxAttempts = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 50 * time.Millisecond
)

// ErrRetriesExhausted wraps the last error of a transaction that kept
// failing with retryable errors
var ErrRetriesExhausted = errors.New("transaction retries exhausted")

// PostgreSQL SQLSTATE codes of retryable failures
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// RetryConfig configures retry behavior for transactions
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: DefaultMaxAttempts, BaseBackoff: DefaultBaseBackoff}
}

// WithRetry runs fn in a transaction, retrying with exponential backoff
// while the failure is retryable
func (m *Manager) WithRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	attempts := m.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}

		err := m.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		backoff := m.retry.BaseBackoff * time.Duration(1<<uint(attempt))
		m.logger.Debug("retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempts, lastErr)
}

// IsRetryable reports whether err is a deadlock, a serialization failure or
// a busy sqlite database
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeDeadlockDetected || pgErr.Code == codeSerializationFailure
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == codeDeadlockDetected || string(pqErr.Code) == codeSerializationFailure
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}
