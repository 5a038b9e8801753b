package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Driver: "sqlite3", URL: ":memory:"}.Validate())
	assert.NoError(t, Config{Driver: "pgx", URL: "postgres://localhost/db"}.Validate())
	assert.Error(t, Config{Driver: "mysql", URL: "x"}.Validate())
	assert.Error(t, Config{Driver: "postgres"}.Validate())
}

func TestOpenSQLite(t *testing.T) {
	db, err := Open(context.Background(), Config{Driver: "sqlite3", URL: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	defer db.Close()

	var one int
	require.NoError(t, db.QueryRow("SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestConvertDBError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"no rows", sql.ErrNoRows, ErrNotFound},
		{"pgx unique", &pgconn.PgError{Code: "23505", Detail: "Key (isbn)=(1) already exists."}, ErrUniqueViolation},
		{"pgx foreign key", &pgconn.PgError{Code: "23503"}, ErrForeignKeyViolation},
		{"pq check", &pq.Error{Code: "23514"}, ErrCheckViolation},
		{"pq not null", fmt.Errorf("insert: %w", &pq.Error{Code: "23502", Column: "title"}), ErrNotNullViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			converted := ConvertDBError(tt.err)
			assert.True(t, errors.Is(converted, tt.target), converted.Error())
		})
	}

	assert.Nil(t, ConvertDBError(nil))

	other := errors.New("boom")
	assert.Equal(t, other, ConvertDBError(other))
	assert.True(t, IsConstraintViolation(ConvertDBError(&pgconn.PgError{Code: "23505"})))
	assert.True(t, IsNotFound(ConvertDBError(sql.ErrNoRows)))
}

func TestConvertSQLiteConstraint(t *testing.T) {
	db, err := Open(context.Background(), Config{Driver: "sqlite3", URL: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE books (id INTEGER PRIMARY KEY, isbn TEXT UNIQUE NOT NULL)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO books (isbn) VALUES ('1')")
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO books (isbn) VALUES ('1')")
	assert.ErrorIs(t, ConvertDBError(err), ErrUniqueViolation)

	_, err = db.Exec("INSERT INTO books (isbn) VALUES (NULL)")
	assert.ErrorIs(t, ConvertDBError(err), ErrNotNullViolation)
}
