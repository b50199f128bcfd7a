package db

import (
	"errors"
	"testing"
)

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error should not be a violation")
	}
	pgErr := errors.New(`ERROR: duplicate key value violates unique constraint "idx_inventory_items_code" (SQLSTATE 23505)`)
	if !IsUniqueViolation(pgErr, "") {
		t.Fatal("expected postgres duplicate key to match")
	}
	if !IsUniqueViolation(pgErr, "idx_inventory_items_code") {
		t.Fatal("expected constraint name to match")
	}
	if IsUniqueViolation(pgErr, "idx_carts_owner_email") && !IsUniqueViolation(pgErr, "") {
		t.Fatal("unexpected constraint match")
	}
	liteErr := errors.New("UNIQUE constraint failed: inventory_items.code")
	if !IsUniqueViolation(liteErr, "") {
		t.Fatal("expected sqlite phrasing to match")
	}
	if IsUniqueViolation(errors.New("connection refused"), "") {
		t.Fatal("unrelated error should not match")
	}
}
