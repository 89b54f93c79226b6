package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t VALUES (1)")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "phone_links_phone_key"})
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(err, "phone_links_phone_key") {
		t.Fatalf("expected constraint match")
	}
	if IsUniqueViolation(err, "other") {
		t.Fatalf("expected constraint mismatch")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "08000"}, "") {
		t.Fatalf("connection errors are not unique violations")
	}
}

func TestPlaceholders(t *testing.T) {
	if got := Placeholders(2, 3); got != "$2, $3, $4" {
		t.Fatalf("unexpected placeholders %q", got)
	}
	if got := Placeholders(1, 0); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
