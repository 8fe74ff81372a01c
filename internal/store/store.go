package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const kvTable = "kv"

// Store is the SQLite-backed key-value medium.
type Store struct {
	db  *sql.DB
	drv *entsql.Driver
	now func() time.Time
}

var _ KV = (*Store)(nil)

// Open creates a new Store connected to the SQLite database at dsn.
// It applies recommended pragmas and creates the kv table.
func Open(dsn string) (*Store, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	drv := entsql.OpenDB(dialect.SQLite, db)
	if err := migrate(context.Background(), drv); err != nil {
		db.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return &Store{db: db, drv: drv, now: time.Now}, nil
}

// OpenDB opens a SQLite database and applies the standard pragmas.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	return db, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(ctx context.Context, drv *entsql.Driver) error {
	return Exec(ctx, drv, SQL.CreateTable(kvTable).IfNotExists().
		Columns(
			entsql.Column("key").Type("TEXT").Attr("PRIMARY KEY"),
			entsql.Column("value").Type("TEXT").Attr("NOT NULL"),
			entsql.Column("updated_at").Type("TIMESTAMP").Attr("NOT NULL"),
		))
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	vals, err := Strings(ctx, s.drv, SQL.Select("value").
		From(entsql.Table(kvTable)).
		Where(entsql.EQ("key", key)).
		Limit(1))
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	if len(vals) == 0 {
		return "", false, nil
	}
	return vals[0], true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.Apply(ctx, []Op{{Key: key, Value: value}})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.Apply(ctx, []Op{{Key: key, Delete: true}})
}

func (s *Store) MultiSet(ctx context.Context, pairs []Pair) error {
	ops := make([]Op, len(pairs))
	for i, p := range pairs {
		ops[i] = Op{Key: p.Key, Value: p.Value}
	}
	return s.Apply(ctx, ops)
}

func (s *Store) MultiRemove(ctx context.Context, keys []string) error {
	ops := make([]Op, len(keys))
	for i, k := range keys {
		ops[i] = Op{Key: k, Delete: true}
	}
	return s.Apply(ctx, ops)
}

// AllKeys returns every key in sorted order.
func (s *Store) AllKeys(ctx context.Context) ([]string, error) {
	keys, err := Strings(ctx, s.drv, SQL.Select("key").
		From(entsql.Table(kvTable)).
		OrderBy("key"))
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Apply runs ops in a single transaction. Either every op lands or none does.
func (s *Store) Apply(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	for _, op := range ops {
		if op.Delete {
			if err := Exec(ctx, tx, SQL.Delete(kvTable).Where(entsql.EQ("key", op.Key))); err != nil {
				return fmt.Errorf("remove %q: %w", op.Key, err)
			}
			continue
		}
		if err := Exec(ctx, tx, upsert(op.Key, op.Value, now)); err != nil {
			return fmt.Errorf("set %q: %w", op.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsert(key, value string, now time.Time) *entsql.InsertBuilder {
	return SQL.Insert(kvTable).
		Columns("key", "value", "updated_at").
		Values(key, value, now).
		OnConflict(
			entsql.ConflictColumns("key"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("value")
				u.SetExcluded("updated_at")
			}),
		)
}

// applyPragmas configures SQLite for optimal single-user performance.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DefaultDBPath resolves the key-value database path in priority order:
// 1. STUDYLOG_DB environment variable
// 2. $XDG_DATA_HOME/studylog/studylog.db
// 3. ~/.local/share/studylog/studylog.db
func DefaultDBPath() (string, error) {
	return resolvePath("STUDYLOG_DB", "studylog.db")
}

// DefaultVaultPath resolves the secure vault path the same way, using
// STUDYLOG_VAULT_DB and vault.db.
func DefaultVaultPath() (string, error) {
	return resolvePath("STUDYLOG_VAULT_DB", "vault.db")
}

func resolvePath(env, file string) (string, error) {
	if p := os.Getenv(env); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "studylog", file)
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
