// Where: cli/internal/store/sqlite/sqlite.go
// What: SQLite-backed local emulator of the BaaS.
// Why: Provision and exercise the schema offline with real tables and indexes.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Catalog schema version, stored in PRAGMA user_version.
const currentSchemaVersion = 1

// Store keeps the catalog in rb_* tables and one table per collection.
type Store struct {
	db   *sql.DB
	path string

	// Now and NewID are replaceable for deterministic tests.
	Now    func() time.Time
	NewID  func() string
	Logger *zap.Logger
}

// Open creates or opens the database file at path and applies the catalog
// schema. It is safe to call repeatedly on the same file.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{
		db:     db,
		path:   path,
		Now:    time.Now,
		NewID:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		Logger: zap.NewNop(),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("catalog version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *Store) newID(id string) string {
	if id == "" || id == store.UniqueID {
		return s.NewID()
	}
	return id
}

func (s *Store) now() string {
	return store.FormatTime(s.Now())
}

// quote renders an SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func tableName(databaseID, collectionID string) string {
	return "doc_" + databaseID + "_" + collectionID
}

func indexName(table, key string) string {
	return "idx_" + table + "_" + key
}

// classify maps driver errors to store kinds. Unique and primary key
// violations mean the object already exists.
func classify(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	var se *store.Error
	if errors.As(err, &se) {
		return err
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return store.New(store.KindConflict, op, resource, "already exists")
		}
		if sqliteErr.Code == sqlite3.ErrConstraint {
			return store.Wrap(store.KindValidation, op, resource, err)
		}
	}
	return store.Wrap(store.KindTransport, op, resource, err)
}

// inTx runs fn in a transaction and commits when it returns nil.
func (s *Store) inTx(ctx context.Context, op, resource string, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return store.Wrap(store.KindTransport, op, resource, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, resource, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(op, resource, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(op, resource, err)
	}
	return nil
}

var (
	_ store.SchemaStore    = (*Store)(nil)
	_ store.DatabaseLister = (*Store)(nil)
	_ store.DocumentStore  = (*Store)(nil)
	_ store.AccountStore   = (*Store)(nil)
	_ store.FileStore      = (*Store)(nil)
)
