package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestWithTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM books").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := NewManager(db).WithTransaction(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "DELETE FROM books WHERE id = $1", 1)
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on error", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := NewManager(db).WithTransaction(ctx, func(*sql.Tx) error {
			return ErrTransactionAborted
		})
		assert.ErrorIs(t, err, ErrTransactionAborted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback on panic", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.PanicsWithValue(t, "boom", func() {
			_ = NewManager(db).WithTransaction(ctx, func(*sql.Tx) error {
				panic("boom")
			})
		})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("pool closed"))

		err := NewManager(db).WithTransaction(ctx, func(*sql.Tx) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
	})
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	fast := WithRetryConfig(RetryConfig{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	t.Run("retries deadlocks", func(t *testing.T) {
		db, mock := newMock(t)
		deadlock := &pgconn.PgError{Code: "40P01"}
		mock.ExpectBegin()
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectCommit()

		core, logs := observer.New(zap.DebugLevel)
		calls := 0
		err := NewManager(db, fast, WithLogger(zap.New(core))).WithRetry(ctx, func(*sql.Tx) error {
			calls++
			if calls == 1 {
				return deadlock
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 1, logs.FilterMessage("retrying transaction").Len())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up", func(t *testing.T) {
		db, mock := newMock(t)
		for i := 0; i < 3; i++ {
			mock.ExpectBegin()
			mock.ExpectRollback()
		}
		err := NewManager(db, fast).WithRetry(ctx, func(*sql.Tx) error {
			return &pq.Error{Code: "40001"}
		})
		assert.ErrorIs(t, err, ErrRetriesExhausted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		calls := 0
		err := NewManager(db, fast).WithRetry(ctx, func(*sql.Tx) error {
			calls++
			return &pgconn.PgError{Code: "23505"}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		db, _ := newMock(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := NewManager(db, fast).WithRetry(cctx, func(*sql.Tx) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsRetryable(fmt.Errorf("update: %w", &pq.Error{Code: "40001"})))
	assert.True(t, IsRetryable(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsRetryable(errors.New("deadlock detected")))
	assert.False(t, IsRetryable(nil))
}

func TestIsolationLevel(t *testing.T) {
	assert.Equal(t, "SERIALIZABLE", Serializable.String())
	assert.Equal(t, "READ COMMITTED", ReadCommitted.String())
	assert.Nil(t, ReadCommitted.TxOptions())
	assert.Equal(t, sql.LevelRepeatableRead, RepeatableRead.TxOptions().Isolation)
}
