package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/sctid/internal/sctid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps records in a single SQLite database. Writes go through
// a one-connection pool; reads use a separate WAL reader pool.
type SQLiteStore struct {
	write *sql.DB
	read  *sql.DB
}

// OpenSQLite creates or opens dataDir/sctid.db and runs pending migrations.
func OpenSQLite(dataDir string, opts Options) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "sctid.db")

	synchronous := "NORMAL"
	if opts.NoSync {
		synchronous = "OFF"
	}
	writeDB, err := openConn(dbPath, synchronous)
	if err != nil {
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := openConn(dbPath, synchronous)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}

	s := &SQLiteStore{write: writeDB, read: readDB}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database opened", "path", dbPath)
	return s, nil
}

func openConn(path, synchronous string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(%s)&_pragma=busy_timeout(5000)", path, synchronous)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.write.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%f', 'now'))
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.write.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get current migration version: %w", err)
	}
	if current >= 1 {
		slog.Debug("migrations up to date", "version", current)
		return nil
	}

	sqlBytes, err := migrations.ReadFile("migrations/001_initial.sql")
	if err != nil {
		return fmt.Errorf("read migration 001: %w", err)
	}
	tx, err := s.write.Begin()
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		return fmt.Errorf("execute migration 001: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", 1); err != nil {
		return fmt.Errorf("record migration 001: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration 001: %w", err)
	}
	slog.Info("applied migration", "version", 1)
	return nil
}

// chunks splits ids so IN clauses stay under SQLite's variable limit.
func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (s *SQLiteStore) ExistsAny(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	for _, chunk := range chunks(ids, 500) {
		rows, err := s.read.QueryContext(ctx,
			"SELECT sctid FROM identifiers WHERE sctid IN ("+placeholders(len(chunk))+")", toArgs(chunk)...)
		if err != nil {
			return nil, NewUnavailableError("exists", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, NewUnavailableError("exists", err)
			}
			found[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, NewUnavailableError("exists", err)
		}
	}
	return found, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, records []sctid.Record) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return NewUnavailableError("upsert", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO identifiers
		(sctid, item_id, namespace, partition, check_digit, status, source, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sctid) DO UPDATE SET
			status = excluded.status,
			source = excluded.source,
			modified_at = excluded.modified_at`)
	if err != nil {
		return NewUnavailableError("upsert", err)
	}
	defer stmt.Close()
	for _, r := range records {
		_, err := stmt.ExecContext(ctx, r.ID, int64(r.ItemID), r.Namespace, int(r.Category), r.CheckDigit,
			int(r.Status), r.Source, r.CreatedAt.UnixNano(), r.ModifiedAt.UnixNano())
		if err != nil {
			return NewUnavailableError("upsert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return NewUnavailableError("upsert", err)
	}
	return nil
}

const selectRecord = `SELECT sctid, item_id, namespace, partition, check_digit, status, source, created_at, modified_at FROM identifiers`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (sctid.Record, error) {
	var (
		r                   sctid.Record
		itemID              int64
		part, status        int
		createdNs, modified int64
	)
	if err := row.Scan(&r.ID, &itemID, &r.Namespace, &part, &r.CheckDigit, &status, &r.Source, &createdNs, &modified); err != nil {
		return sctid.Record{}, err
	}
	r.ItemID = uint64(itemID)
	r.Category = sctid.Category(part)
	r.Status = sctid.Status(status)
	r.CreatedAt = time.Unix(0, createdNs).UTC()
	r.ModifiedAt = time.Unix(0, modified).UTC()
	return r, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (sctid.Record, error) {
	r, err := scanRecord(s.read.QueryRowContext(ctx, selectRecord+" WHERE sctid = ?", id))
	if err == sql.ErrNoRows {
		return sctid.Record{}, NewNotFoundError(id)
	}
	if err != nil {
		return sctid.Record{}, NewUnavailableError("get", err)
	}
	return r, nil
}

func (s *SQLiteStore) GetMany(ctx context.Context, ids []string) (map[string]sctid.Record, error) {
	out := make(map[string]sctid.Record, len(ids))
	for _, chunk := range chunks(ids, 500) {
		rows, err := s.read.QueryContext(ctx, selectRecord+" WHERE sctid IN ("+placeholders(len(chunk))+")", toArgs(chunk)...)
		if err != nil {
			return nil, NewUnavailableError("get", err)
		}
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, NewUnavailableError("get", err)
			}
			out[r.ID] = r
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, NewUnavailableError("get", err)
		}
	}
	return out, nil
}

func (s *SQLiteStore) LoadCounter(ctx context.Context, namespace string, cat sctid.Category) (uint64, error) {
	var v int64
	err := s.read.QueryRowContext(ctx, "SELECT value FROM counters WHERE namespace = ? AND partition = ?",
		namespace, int(cat)).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, NewUnavailableError("load counter", err)
	}
	return uint64(v), nil
}

func (s *SQLiteStore) CompareAndSwapCounter(ctx context.Context, namespace string, cat sctid.Category, prev, next uint64) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if prev == 0 {
		res, err = s.write.ExecContext(ctx, `INSERT INTO counters (namespace, partition, value) VALUES (?, ?, ?)
			ON CONFLICT(namespace, partition) DO UPDATE SET value = excluded.value WHERE counters.value = 0`,
			namespace, int(cat), int64(next))
	} else {
		res, err = s.write.ExecContext(ctx, "UPDATE counters SET value = ? WHERE namespace = ? AND partition = ? AND value = ?",
			int64(next), namespace, int(cat), int64(prev))
	}
	if err != nil {
		return false, NewUnavailableError("swap counter", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, NewUnavailableError("swap counter", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) MaxItemID(ctx context.Context, namespace string, cat sctid.Category) (uint64, bool, error) {
	var v sql.NullInt64
	err := s.read.QueryRowContext(ctx, "SELECT MAX(item_id) FROM identifiers WHERE namespace = ? AND partition = ?",
		namespace, int(cat)).Scan(&v)
	if err != nil {
		return 0, false, NewUnavailableError("max item id", err)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return uint64(v.Int64), true, nil
}

// Close closes both connection pools.
func (s *SQLiteStore) Close() error {
	var errs []error
	if err := s.write.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close write db: %w", err))
	}
	if err := s.read.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close read db: %w", err))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
