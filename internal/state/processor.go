package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/database"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
	"github.com/conduit-lang/hyperapi/internal/orm/transaction"
)

// SQLProcessor writes items with INSERT, UPDATE and DELETE statements, one
// transaction per operation
type SQLProcessor struct {
	registry *schema.Registry
	tx       *transaction.Manager
	hydrator *Hydrator
	logger   *zap.Logger
}

// NewSQLProcessor creates a processor
func NewSQLProcessor(registry *schema.Registry, tx *transaction.Manager, hydrator *Hydrator, opts ...Option) *SQLProcessor {
	o := newOptions(opts)
	return &SQLProcessor{
		registry: registry,
		tx:       tx,
		hydrator: hydrator,
		logger:   o.logger.Named("sql_processor"),
	}
}

// Process implements Processor: POST inserts, PUT and PATCH update, DELETE
// removes. Other operations return data untouched.
func (p *SQLProcessor) Process(ctx context.Context, ref *metadata.OperationRef, data interface{}, _ Request) (interface{}, error) {
	var err error
	switch ref.Operation.Kind {
	case metadata.KindPost:
		err = p.insert(ctx, ref.Class, data)
	case metadata.KindPut, metadata.KindPatch:
		err = p.update(ctx, ref.Class, data)
	case metadata.KindDelete:
		return nil, p.remove(ctx, ref.Class, data)
	default:
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (p *SQLProcessor) insert(ctx context.Context, class string, item interface{}) error {
	table, columns, err := p.columns(ctx, class, item)
	if err != nil {
		return err
	}

	var names, placeholders, returning []string
	var args []interface{}
	for _, c := range columns {
		returning = append(returning, c.Name)
		if c.Primary && isZero(c.Value) {
			continue
		}
		args = append(args, c.Value)
		names = append(names, c.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	if len(names) == 0 {
		return apierr.InvalidArgument("no column to insert for %s", class)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "), strings.Join(returning, ", "))
	return p.writeReturning(ctx, class, item, stmt, args, returning)
}

func (p *SQLProcessor) update(ctx context.Context, class string, item interface{}) error {
	table, columns, err := p.columns(ctx, class, item)
	if err != nil {
		return err
	}

	var pk *Column
	var sets, returning []string
	var args []interface{}
	for i, c := range columns {
		returning = append(returning, c.Name)
		if c.Primary {
			pk = &columns[i]
			continue
		}
		args = append(args, c.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Name, len(args)))
	}
	if pk == nil || isZero(pk.Value) {
		return apierr.NotNormalizableValue(class, "", "the identifier of the item to update is missing")
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, pk.Value)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		table, strings.Join(sets, ", "), pk.Name, len(args), strings.Join(returning, ", "))
	return p.writeReturning(ctx, class, item, stmt, args, returning)
}

func (p *SQLProcessor) remove(ctx context.Context, class string, item interface{}) error {
	table, columns, err := p.columns(ctx, class, item)
	if err != nil {
		return err
	}
	var pk *Column
	for i := range columns {
		if columns[i].Primary {
			pk = &columns[i]
		}
	}
	if pk == nil || isZero(pk.Value) {
		return apierr.NotNormalizableValue(class, "", "the identifier of the item to delete is missing")
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, pk.Name)
	p.logger.Debug("delete", zap.String("class", class), zap.String("sql", stmt))
	return p.tx.WithRetry(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, stmt, pk.Value)
		if err != nil {
			return translate(class, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apierr.ItemNotFound(class)
		}
		return nil
	})
}

// writeReturning runs a statement returning the written row and refreshes
// item from it
func (p *SQLProcessor) writeReturning(ctx context.Context, class string, item interface{}, stmt string, args []interface{}, returning []string) error {
	p.logger.Debug("write", zap.String("class", class), zap.String("sql", stmt))
	var row map[string]interface{}
	err := p.tx.WithRetry(ctx, func(tx *sql.Tx) error {
		r, err := scanRow(tx.QueryRowContext(ctx, stmt, args...), returning)
		if errors.Is(err, sql.ErrNoRows) {
			return apierr.ItemNotFound(class)
		}
		if err != nil {
			return translate(class, err)
		}
		row = r
		return nil
	})
	if err != nil {
		return err
	}
	return p.hydrator.Refresh(ctx, class, item, row)
}

func (p *SQLProcessor) columns(ctx context.Context, class string, item interface{}) (string, []Column, error) {
	table, err := p.hydrator.Table(ctx, class)
	if err != nil {
		return "", nil, err
	}
	columns, err := p.hydrator.Columns(ctx, class, item)
	if err != nil {
		return "", nil, err
	}
	for i := range columns {
		if columns[i].Primary && isZero(columns[i].Value) {
			if pk, err := p.registry.Identifier(class); err == nil && pk.Type.BaseType == schema.TypeUUID {
				columns[i].Value = uuid.New().String()
			}
		}
	}
	return table, columns, nil
}

// translate turns constraint violations into client errors
func translate(class string, err error) error {
	converted := database.ConvertDBError(err)
	if database.IsConstraintViolation(converted) {
		return apierr.InvalidArgument("%s: %v", class, converted)
	}
	return fmt.Errorf("writing %s: %w", class, converted)
}

// scanRow scans a row with known column order
func scanRow(row *sql.Row, columns []string) (map[string]interface{}, error) {
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, err
	}
	record := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		if b, ok := values[i].([]byte); ok {
			record[col] = string(b)
			continue
		}
		record[col] = values[i]
	}
	return record, nil
}

func isZero(v interface{}) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
