package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsExclusionViolation(t *testing.T) {
	err := fmt.Errorf("insert cita: %w", &pgconn.PgError{Code: "23P01", ConstraintName: "citas_sin_solape"})
	if !IsExclusionViolation(err) {
		t.Fatal("expected wrapped 23P01 to be detected")
	}
	if IsUniqueViolation(err) {
		t.Fatal("23P01 is not a unique violation")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected 23505 to be detected")
	}
	if IsCheckViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("23505 is not a check violation")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get cita: %w", pgx.ErrNoRows)) {
		t.Fatal("expected wrapped ErrNoRows to be detected")
	}
	if IsNoRows(fmt.Errorf("boom")) {
		t.Fatal("plain error is not ErrNoRows")
	}
}
