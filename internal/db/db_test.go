package db

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(context.Background(), Options{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpen_RunsMigrations(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	if err := d.Validate(ctx); err != nil {
		t.Fatalf("schema validation failed: %v", err)
	}
	version, err := d.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, version)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := Open(ctx, Options{Path: path})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := first.DB().Exec(
		`INSERT INTO interaction_event (user_id, feature_id, kind, ts) VALUES ('u1', 'f1', 'viewed', 100)`,
	); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening migrates nothing and keeps the data.
	second, err := Open(ctx, Options{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	var n int
	if err := second.DB().QueryRow(`SELECT COUNT(*) FROM interaction_event`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after reopen, got %d", n)
	}
}

func TestClose_SafeToCallTwice(t *testing.T) {
	d := openTestDB(t)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestValidateSchema_MissingTable(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	if _, err := d.DB().Exec(`DROP TABLE discovery_state`); err != nil {
		t.Fatal(err)
	}
	if err := d.Validate(ctx); err == nil {
		t.Error("expected validation failure for missing table")
	}
}
