package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenSQLite(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenSQLite(dir, Options{})
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "sctid.db")); err != nil {
		t.Fatalf("database file not created: %v", err)
	}

	var journalMode string
	if err := s.read.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want %q", journalMode, "wal")
	}

	for _, table := range []string{"identifiers", "counters", "schema_migrations"} {
		var name string
		err := s.read.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestSQLiteMigrationIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(dir, Options{})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(dir, Options{})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s.Close()

	var count int
	if err := s.read.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", count)
	}
}

func TestChunks(t *testing.T) {
	ids := make([]string, 1201)
	got := chunks(ids, 500)
	if len(got) != 3 || len(got[0]) != 500 || len(got[2]) != 201 {
		t.Fatalf("chunks sizes = %d", len(got))
	}
	if chunks(nil, 500) != nil {
		t.Fatal("chunks(nil) not nil")
	}
}
