// Where: cli/internal/store/sqlite/catalog.go
// What: Schema operations over the rb_* catalog and per-collection tables.
// Why: Attributes become real columns and indexes real SQLite indexes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	opCreateDatabase   = "create database"
	opGetDatabase      = "get database"
	opListDatabases    = "list databases"
	opCreateCollection = "create collection"
	opGetCollection    = "get collection"
	opCreateAttribute  = "create attribute"
	opCreateIndex      = "create index"
	opCreateBucket     = "create bucket"
	opGetBucket        = "get bucket"
)

func (s *Store) CreateDatabase(ctx context.Context, id, name string) (store.Database, error) {
	var db store.Database
	err := s.inTx(ctx, opCreateDatabase, id, func(tx *sql.Tx) error {
		created := s.now()
		if _, err := tx.ExecContext(ctx, `INSERT INTO rb_databases (id, name, enabled, created_at) VALUES (?, ?, 1, ?)`, id, name, created); err != nil {
			return err
		}
		var err error
		db, err = scanDatabase(tx.QueryRowContext(ctx, `SELECT id, name, enabled, created_at FROM rb_databases WHERE id = ?`, id))
		return err
	})
	return db, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDatabase(row rowScanner) (store.Database, error) {
	var (
		db      store.Database
		created string
	)
	if err := row.Scan(&db.ID, &db.Name, &db.Enabled, &created); err != nil {
		return store.Database{}, err
	}
	t, err := parseTime(created)
	if err != nil {
		return store.Database{}, err
	}
	db.CreatedAt = t
	return db, nil
}

func (s *Store) GetDatabase(ctx context.Context, id string) (store.Database, error) {
	db, err := scanDatabase(s.db.QueryRowContext(ctx, `SELECT id, name, enabled, created_at FROM rb_databases WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Database{}, store.NotFound(opGetDatabase, id)
	}
	if err != nil {
		return store.Database{}, classify(opGetDatabase, id, err)
	}
	return db, nil
}

func (s *Store) ListDatabases(ctx context.Context) ([]store.Database, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, enabled, created_at FROM rb_databases ORDER BY created_at, id`)
	if err != nil {
		return nil, classify(opListDatabases, "", err)
	}
	defer rows.Close()
	var out []store.Database
	for rows.Next() {
		db, err := scanDatabase(rows)
		if err != nil {
			return nil, classify(opListDatabases, "", err)
		}
		out = append(out, db)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(opListDatabases, "", err)
	}
	return out, nil
}

func databaseExists(ctx context.Context, q querier, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM rb_databases WHERE id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) CreateCollection(ctx context.Context, databaseID string, spec schema.Collection) (store.Collection, error) {
	var out store.Collection
	err := s.inTx(ctx, opCreateCollection, spec.ID, func(tx *sql.Tx) error {
		ok, err := databaseExists(ctx, tx, databaseID)
		if err != nil {
			return err
		}
		if !ok {
			return store.NotFound(opCreateCollection, databaseID)
		}
		meta := store.CollectionFromSpec(databaseID, spec)
		perms, err := json.Marshal(meta.Permissions)
		if err != nil {
			return err
		}
		table := tableName(databaseID, spec.ID)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rb_collections (database_id, id, name, permissions, document_security, table_name) VALUES (?, ?, ?, ?, ?, ?)`,
			databaseID, spec.ID, spec.Name, string(perms), spec.DocumentSecurity, table,
		); err != nil {
			return err
		}
		ddl := fmt.Sprintf(`CREATE TABLE %s ("$id" TEXT PRIMARY KEY, "$createdAt" TEXT NOT NULL, "$updatedAt" TEXT NOT NULL)`, quote(table))
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return err
		}
		s.Logger.Debug("collection table created", zap.String("table", table))
		out = meta
		return nil
	})
	return out, err
}

type collectionRow struct {
	meta  store.Collection
	table string
}

func loadCollection(ctx context.Context, q querier, op, databaseID, id string) (collectionRow, error) {
	var (
		row   collectionRow
		perms string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, permissions, document_security, table_name FROM rb_collections WHERE database_id = ? AND id = ?`,
		databaseID, id,
	).Scan(&row.meta.ID, &row.meta.Name, &perms, &row.meta.DocumentSecurity, &row.table)
	if errors.Is(err, sql.ErrNoRows) {
		return collectionRow{}, store.NotFound(op, id)
	}
	if err != nil {
		return collectionRow{}, err
	}
	if err := json.Unmarshal([]byte(perms), &row.meta.Permissions); err != nil {
		return collectionRow{}, fmt.Errorf("decode permissions of %s: %w", id, err)
	}
	row.meta.DatabaseID = databaseID
	row.meta.Enabled = true
	return row, nil
}

func (s *Store) GetCollection(ctx context.Context, databaseID, id string) (store.Collection, error) {
	row, err := loadCollection(ctx, s.db, opGetCollection, databaseID, id)
	if err != nil {
		return store.Collection{}, classify(opGetCollection, id, err)
	}
	return row.meta, nil
}

// columnType is the declared SQLite type of an attribute column. Array
// attributes hold JSON text.
func columnType(kind schema.AttributeKind, array bool) string {
	if array {
		return "TEXT"
	}
	switch kind {
	case schema.KindInteger, schema.KindBoolean:
		return "INTEGER"
	case schema.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (s *Store) CreateAttribute(ctx context.Context, databaseID, collectionID string, spec schema.Attribute) (store.Attribute, error) {
	resource := collectionID + "." + spec.Key
	attr := store.AttributeFromSpec(spec)
	err := s.inTx(ctx, opCreateAttribute, resource, func(tx *sql.Tx) error {
		coll, err := loadCollection(ctx, tx, opCreateAttribute, databaseID, collectionID)
		if err != nil {
			return err
		}
		if strings.HasPrefix(spec.Key, "$") {
			return store.New(store.KindValidation, opCreateAttribute, resource, "attribute keys cannot start with $")
		}
		encoded, err := json.Marshal(attr)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rb_attributes (database_id, collection_id, attr_key, position, spec)
			 VALUES (?, ?, ?, (SELECT COUNT(*) FROM rb_attributes WHERE database_id = ? AND collection_id = ?), ?)`,
			databaseID, collectionID, spec.Key, databaseID, collectionID, string(encoded),
		); err != nil {
			return err
		}
		ddl := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, quote(coll.table), quote(spec.Key), columnType(spec.Kind, spec.Array))
		_, err = tx.ExecContext(ctx, ddl)
		return err
	})
	if err != nil {
		return store.Attribute{}, err
	}
	return attr, nil
}

func loadAttributes(ctx context.Context, q querier, databaseID, collectionID string) ([]store.Attribute, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT spec FROM rb_attributes WHERE database_id = ? AND collection_id = ? ORDER BY position`,
		databaseID, collectionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Attribute
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var attr store.Attribute
		if err := json.Unmarshal([]byte(raw), &attr); err != nil {
			return nil, fmt.Errorf("decode attribute of %s: %w", collectionID, err)
		}
		out = append(out, attr)
	}
	return out, rows.Err()
}

func loadIndexes(ctx context.Context, q querier, databaseID, collectionID string) ([]store.Index, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT spec FROM rb_indexes WHERE database_id = ? AND collection_id = ? ORDER BY position`,
		databaseID, collectionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Index
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var idx store.Index
		if err := json.Unmarshal([]byte(raw), &idx); err != nil {
			return nil, fmt.Errorf("decode index of %s: %w", collectionID, err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// Attributes returns the catalog attributes of a collection in creation order.
func (s *Store) Attributes(ctx context.Context, databaseID, collectionID string) ([]store.Attribute, error) {
	attrs, err := loadAttributes(ctx, s.db, databaseID, collectionID)
	return attrs, classify("list attributes", collectionID, err)
}

// Indexes returns the catalog indexes of a collection in creation order.
func (s *Store) Indexes(ctx context.Context, databaseID, collectionID string) ([]store.Index, error) {
	idx, err := loadIndexes(ctx, s.db, databaseID, collectionID)
	return idx, classify("list indexes", collectionID, err)
}

func (s *Store) CreateIndex(ctx context.Context, databaseID, collectionID string, spec schema.Index) (store.Index, error) {
	resource := collectionID + "." + spec.Key
	idx := store.IndexFromSpec(spec)
	err := s.inTx(ctx, opCreateIndex, resource, func(tx *sql.Tx) error {
		coll, err := loadCollection(ctx, tx, opCreateIndex, databaseID, collectionID)
		if err != nil {
			return err
		}
		attrs, err := loadAttributes(ctx, tx, databaseID, collectionID)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(attrs))
		for _, a := range attrs {
			known[a.Key] = true
		}
		columns := make([]string, 0, len(spec.Attributes))
		for i, key := range spec.Attributes {
			if !known[key] {
				return store.New(store.KindValidation, opCreateIndex, resource, fmt.Sprintf("attribute %q not found", key))
			}
			column := quote(key)
			if i < len(spec.Orders) {
				column += " " + strings.ToUpper(spec.Orders[i])
			}
			columns = append(columns, column)
		}
		encoded, err := json.Marshal(idx)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rb_indexes (database_id, collection_id, index_key, position, spec)
			 VALUES (?, ?, ?, (SELECT COUNT(*) FROM rb_indexes WHERE database_id = ? AND collection_id = ?), ?)`,
			databaseID, collectionID, spec.Key, databaseID, collectionID, string(encoded),
		); err != nil {
			return err
		}
		unique := ""
		if spec.Kind == schema.IndexUnique {
			unique = "UNIQUE "
		}
		ddl := fmt.Sprintf(`CREATE %sINDEX %s ON %s (%s)`, unique, quote(indexName(coll.table, spec.Key)), quote(coll.table), strings.Join(columns, ", "))
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			// Existing rows that violate a new unique index are a data problem, not a conflict.
			return store.Wrap(store.KindValidation, opCreateIndex, resource, err)
		}
		return nil
	})
	if err != nil {
		return store.Index{}, err
	}
	return idx, nil
}

func (s *Store) CreateBucket(ctx context.Context, spec schema.Bucket) (store.Bucket, error) {
	bucket := store.BucketFromSpec(spec)
	err := s.inTx(ctx, opCreateBucket, spec.ID, func(tx *sql.Tx) error {
		encoded, err := json.Marshal(bucket)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO rb_buckets (id, spec, created_at) VALUES (?, ?, ?)`, spec.ID, string(encoded), s.now())
		return err
	})
	if err != nil {
		return store.Bucket{}, err
	}
	return bucket, nil
}

func loadBucket(ctx context.Context, q querier, op, id string) (store.Bucket, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT spec FROM rb_buckets WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Bucket{}, store.NotFound(op, id)
	}
	if err != nil {
		return store.Bucket{}, err
	}
	var b store.Bucket
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return store.Bucket{}, fmt.Errorf("decode bucket %s: %w", id, err)
	}
	return b, nil
}

func (s *Store) GetBucket(ctx context.Context, id string) (store.Bucket, error) {
	b, err := loadBucket(ctx, s.db, opGetBucket, id)
	if err != nil {
		return store.Bucket{}, classify(opGetBucket, id, err)
	}
	return b, nil
}
