package postgres

import (
	"slices"
	"testing"
)

func TestPendingMigrations(t *testing.T) {
	all, err := pendingMigrations(nil)
	if err != nil {
		t.Fatalf("pendingMigrations() error = %v", err)
	}
	if !slices.Contains(all, "001_init.sql") {
		t.Fatalf("pendingMigrations(nil) = %v, want 001_init.sql", all)
	}
	if !slices.IsSorted(all) {
		t.Errorf("pendingMigrations(nil) = %v, want sorted", all)
	}

	rest, err := pendingMigrations([]string{"001_init.sql"})
	if err != nil {
		t.Fatalf("pendingMigrations() error = %v", err)
	}
	if slices.Contains(rest, "001_init.sql") {
		t.Errorf("applied migration still pending: %v", rest)
	}
	if len(rest) != len(all)-1 {
		t.Errorf("pending = %v, want %d files", rest, len(all)-1)
	}
}
