package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/logging"
	"github.com/conduit-lang/hyperapi/internal/orm/transaction"
)

// Runner applies generated DDL
type Runner struct {
	tx     *transaction.Manager
	gen    *Generator
	logger *zap.Logger
}

// NewRunner creates a runner executing the statements of gen through tx
func NewRunner(tx *transaction.Manager, gen *Generator, logger *zap.Logger) *Runner {
	return &Runner{tx: tx, gen: gen, logger: logging.OrNop(logger).Named("migrate")}
}

// Create executes every statement in a single transaction and returns the
// statements applied. Nothing is applied when one of them fails.
func (r *Runner) Create(ctx context.Context) ([]Statement, error) {
	stmts, err := r.gen.Statements()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}

	start := time.Now()
	err = r.tx.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt.SQL); err != nil {
				return fmt.Errorf("table %s: %w", stmt.Table, err)
			}
			r.logger.Debug("statement applied", zap.String("table", stmt.Table), zap.String("sql", stmt.SQL))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("schema created",
		zap.Stringer("dialect", r.gen.Dialect()),
		zap.Int("statements", len(stmts)),
		zap.Duration("duration", time.Since(start)))
	return stmts, nil
}
