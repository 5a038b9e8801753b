// Package transaction runs the writes of the state processors inside
// database transactions, retrying the ones the database aborted because of
// a deadlock or a serialization failure.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/logging"
)

// ErrTransactionAborted is returned when fn asks for a rollback without an
// error of its own
var ErrTransactionAborted = errors.New("transaction aborted")

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted IsolationLevel = iota
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the SQL name of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// TxOptions converts the level to sql.TxOptions
func (l IsolationLevel) TxOptions() *sql.TxOptions {
	switch l {
	case RepeatableRead:
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	case Serializable:
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	default:
		// the driver default is read committed; sqlite3 rejects explicit levels
		return nil
	}
}

// Manager opens transactions on one connection pool
type Manager struct {
	db     *sql.DB
	retry  RetryConfig
	level  IsolationLevel
	logger *zap.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithRetryConfig replaces the default retry configuration
func WithRetryConfig(cfg RetryConfig) Option {
	return func(m *Manager) {
		m.retry = cfg
	}
}

// WithIsolation sets the isolation level of every transaction
func WithIsolation(level IsolationLevel) Option {
	return func(m *Manager) {
		m.level = level
	}
}

// WithLogger sets the logger receiving retry events
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a new transaction manager
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{db: db, retry: DefaultRetryConfig()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger).Named("transaction")
	return m
}

// DB returns the underlying connection pool
func (m *Manager) DB() *sql.DB {
	return m.db
}

// WithTransaction executes fn within a transaction. It commits when fn
// returns nil and rolls back otherwise, including when fn panics.
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := m.db.BeginTx(ctx, m.level.TxOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
