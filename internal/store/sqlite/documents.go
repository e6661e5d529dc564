// Where: cli/internal/store/sqlite/documents.go
// What: Document rows and translation of store queries to SQL.
// Why: Let SQLite filter, order and page instead of scanning in memory.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	opCreateDocument = "create document"
	opGetDocument    = "get document"
	opListDocuments  = "list documents"
	opUpdateDocument = "update document"
	opDeleteDocument = "delete document"
)

var systemColumns = []string{store.FieldID, store.FieldCreatedAt, store.FieldUpdatedAt}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

// encodeValue converts a checked attribute value to its column form.
func encodeValue(attr store.Attribute, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if attr.Array {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	}
	switch t := v.(type) {
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case time.Time:
		return store.FormatTime(t), nil
	}
	return v, nil
}

// decodeValue converts a column value back to the attribute's Go form.
func decodeValue(attr store.Attribute, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if attr.Array {
		s, _ := v.(string)
		var items []any
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, fmt.Errorf("decode array %s: %w", attr.Key, err)
		}
		return items, nil
	}
	switch schema.AttributeKind(attr.Type) {
	case schema.KindBoolean:
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("attribute %s holds %T, want integer", attr.Key, v)
		}
		return n != 0, nil
	case schema.KindInteger:
		switch n := v.(type) {
		case int64:
			return int(n), nil
		case float64:
			return int(n), nil
		}
	case schema.KindFloat:
		if n, ok := v.(int64); ok {
			return float64(n), nil
		}
	}
	return v, nil
}

type collectionData struct {
	collectionRow
	attrs   []store.Attribute
	byKey   map[string]store.Attribute
	columns []string
}

func loadCollectionData(ctx context.Context, q querier, op, databaseID, collectionID string) (collectionData, error) {
	coll, err := loadCollection(ctx, q, op, databaseID, collectionID)
	if err != nil {
		return collectionData{}, err
	}
	attrs, err := loadAttributes(ctx, q, databaseID, collectionID)
	if err != nil {
		return collectionData{}, err
	}
	data := collectionData{collectionRow: coll, attrs: attrs, byKey: make(map[string]store.Attribute, len(attrs))}
	data.columns = append(data.columns, systemColumns...)
	for _, a := range attrs {
		data.byKey[a.Key] = a
		data.columns = append(data.columns, a.Key)
	}
	return data, nil
}

func (c collectionData) selectList() string {
	quoted := make([]string, len(c.columns))
	for i, name := range c.columns {
		quoted[i] = quote(name)
	}
	return strings.Join(quoted, ", ")
}

func (c collectionData) scan(row rowScanner, databaseID string) (store.Document, error) {
	values := make([]any, len(c.columns))
	ptrs := make([]any, len(c.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return store.Document{}, err
	}
	doc := store.Document{CollectionID: c.meta.ID, DatabaseID: databaseID, Data: make(map[string]any, len(c.attrs))}
	for i, name := range c.columns {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		switch name {
		case store.FieldID:
			doc.ID, _ = v.(string)
			continue
		case store.FieldCreatedAt, store.FieldUpdatedAt:
			s, _ := v.(string)
			t, err := parseTime(s)
			if err != nil {
				return store.Document{}, err
			}
			if name == store.FieldCreatedAt {
				doc.CreatedAt = t
			} else {
				doc.UpdatedAt = t
			}
			continue
		}
		decoded, err := decodeValue(c.byKey[name], v)
		if err != nil {
			return store.Document{}, err
		}
		doc.Data[name] = decoded
	}
	return doc, nil
}

func (s *Store) CreateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (store.Document, error) {
	var doc store.Document
	err := s.inTx(ctx, opCreateDocument, collectionID, func(tx *sql.Tx) error {
		coll, err := loadCollectionData(ctx, tx, opCreateDocument, databaseID, collectionID)
		if err != nil {
			return err
		}
		prepared, err := store.PrepareDocument(collectionID, coll.attrs, data, false)
		if err != nil {
			return err
		}
		now := s.now()
		columns := []string{quote(store.FieldID), quote(store.FieldCreatedAt), quote(store.FieldUpdatedAt)}
		args := []any{s.newID(documentID), now, now}
		for _, key := range sortedKeys(prepared) {
			v, err := encodeValue(coll.byKey[key], prepared[key])
			if err != nil {
				return err
			}
			columns = append(columns, quote(key))
			args = append(args, v)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
		stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quote(coll.table), strings.Join(columns, ", "), placeholders)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
		doc, err = coll.scan(tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT %s FROM %s WHERE "$id" = ?`, coll.selectList(), quote(coll.table)), args[0]), databaseID)
		return err
	})
	return doc, err
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) GetDocument(ctx context.Context, databaseID, collectionID, documentID string) (store.Document, error) {
	coll, err := loadCollectionData(ctx, s.db, opGetDocument, databaseID, collectionID)
	if err != nil {
		return store.Document{}, classify(opGetDocument, collectionID, err)
	}
	doc, err := coll.scan(s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE "$id" = ?`, coll.selectList(), quote(coll.table)), documentID), databaseID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, store.NotFound(opGetDocument, documentID)
	}
	if err != nil {
		return store.Document{}, classify(opGetDocument, collectionID, err)
	}
	return doc, nil
}

func (s *Store) UpdateDocument(ctx context.Context, databaseID, collectionID, documentID string, data map[string]any) (store.Document, error) {
	var doc store.Document
	err := s.inTx(ctx, opUpdateDocument, collectionID, func(tx *sql.Tx) error {
		coll, err := loadCollectionData(ctx, tx, opUpdateDocument, databaseID, collectionID)
		if err != nil {
			return err
		}
		patch, err := store.PrepareDocument(collectionID, coll.attrs, data, true)
		if err != nil {
			return err
		}
		sets := []string{quote(store.FieldUpdatedAt) + " = ?"}
		args := []any{s.now()}
		for _, key := range sortedKeys(patch) {
			v, err := encodeValue(coll.byKey[key], patch[key])
			if err != nil {
				return err
			}
			sets = append(sets, quote(key)+" = ?")
			args = append(args, v)
		}
		args = append(args, documentID)
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE "$id" = ?`, quote(coll.table), strings.Join(sets, ", ")), args...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return store.NotFound(opUpdateDocument, documentID)
		}
		doc, err = coll.scan(tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT %s FROM %s WHERE "$id" = ?`, coll.selectList(), quote(coll.table)), documentID), databaseID)
		return err
	})
	return doc, err
}

func (s *Store) DeleteDocument(ctx context.Context, databaseID, collectionID, documentID string) error {
	return s.inTx(ctx, opDeleteDocument, collectionID, func(tx *sql.Tx) error {
		coll, err := loadCollection(ctx, tx, opDeleteDocument, databaseID, collectionID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE "$id" = ?`, quote(coll.table)), documentID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return store.NotFound(opDeleteDocument, documentID)
		}
		return nil
	})
}

// sqlQuery is a translated list query.
type sqlQuery struct {
	where  []string
	args   []any
	order  []string
	limit  int
	offset int
}

// translate turns store queries into SQL clauses over the collection table.
func (c collectionData) translate(queries []store.Query) (sqlQuery, error) {
	out := sqlQuery{limit: -1}
	for _, q := range queries {
		switch q.Method {
		case store.MethodLimit, store.MethodOffset:
			n, err := queryInt(q)
			if err != nil {
				return sqlQuery{}, err
			}
			if q.Method == store.MethodLimit {
				out.limit = n
			} else {
				out.offset = n
			}
			continue
		}
		column, attr, err := c.column(q)
		if err != nil {
			return sqlQuery{}, err
		}
		switch q.Method {
		case store.MethodOrderAsc:
			out.order = append(out.order, column+" ASC")
		case store.MethodOrderDesc:
			out.order = append(out.order, column+" DESC")
		case store.MethodEqual:
			if len(q.Values) == 0 {
				return sqlQuery{}, store.New(store.KindValidation, "query", q.Attribute, "equal needs at least one value")
			}
			marks := make([]string, 0, len(q.Values))
			for _, v := range q.Values {
				arg, err := queryArg(attr, v)
				if err != nil {
					return sqlQuery{}, err
				}
				marks = append(marks, "?")
				out.args = append(out.args, arg)
			}
			out.where = append(out.where, fmt.Sprintf("%s IN (%s)", column, strings.Join(marks, ", ")))
		case store.MethodNotEqual:
			for _, v := range q.Values {
				arg, err := queryArg(attr, v)
				if err != nil {
					return sqlQuery{}, err
				}
				out.where = append(out.where, fmt.Sprintf("(%s IS NULL OR %s <> ?)", column, column))
				out.args = append(out.args, arg)
			}
		case store.MethodSearch:
			term := ""
			if len(q.Values) > 0 {
				term = fmt.Sprint(q.Values[0])
			}
			out.where = append(out.where, fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, column))
			out.args = append(out.args, "%"+escapeLike(strings.ToLower(term))+"%")
		case store.MethodGreaterThanEqual, store.MethodLessThanEqual:
			if len(q.Values) == 0 {
				return sqlQuery{}, store.New(store.KindValidation, "query", q.Attribute, "missing value")
			}
			arg, err := queryArg(attr, q.Values[0])
			if err != nil {
				return sqlQuery{}, err
			}
			op := ">="
			if q.Method == store.MethodLessThanEqual {
				op = "<="
			}
			out.where = append(out.where, fmt.Sprintf("%s %s ?", column, op))
			out.args = append(out.args, arg)
		default:
			return sqlQuery{}, store.New(store.KindValidation, "query", q.Attribute, "unsupported query method "+q.Method)
		}
	}
	return out, nil
}

func (c collectionData) column(q store.Query) (string, store.Attribute, error) {
	switch q.Attribute {
	case store.FieldID, store.FieldCreatedAt, store.FieldUpdatedAt:
		return quote(q.Attribute), store.Attribute{Key: q.Attribute, Type: string(schema.KindString)}, nil
	}
	attr, ok := c.byKey[q.Attribute]
	if !ok {
		return "", store.Attribute{}, store.New(store.KindValidation, "query", q.Attribute, fmt.Sprintf("attribute %q not found in %s", q.Attribute, c.meta.ID))
	}
	return quote(q.Attribute), attr, nil
}

func queryArg(attr store.Attribute, v any) (any, error) {
	if attr.Array {
		return v, nil
	}
	return encodeValue(attr, v)
}

func queryInt(q store.Query) (int, error) {
	if len(q.Values) == 0 {
		return 0, store.New(store.KindValidation, "query", q.Method, "missing value")
	}
	switch n := q.Values[0].(type) {
	case int:
		if n >= 0 {
			return n, nil
		}
	case int64:
		if n >= 0 {
			return int(n), nil
		}
	case float64:
		if n >= 0 {
			return int(n), nil
		}
	}
	return 0, store.New(store.KindValidation, "query", q.Method, fmt.Sprintf("invalid value %v", q.Values[0]))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *Store) ListDocuments(ctx context.Context, databaseID, collectionID string, queries ...store.Query) (store.DocumentList, error) {
	coll, err := loadCollectionData(ctx, s.db, opListDocuments, databaseID, collectionID)
	if err != nil {
		return store.DocumentList{}, classify(opListDocuments, collectionID, err)
	}
	q, err := coll.translate(queries)
	if err != nil {
		return store.DocumentList{}, err
	}
	where := ""
	if len(q.where) > 0 {
		where = " WHERE " + strings.Join(q.where, " AND ")
	}
	var total int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, quote(coll.table), where), q.args...).Scan(&total); err != nil {
		return store.DocumentList{}, classify(opListDocuments, collectionID, err)
	}
	// rowid keeps insertion order for rows the explicit order leaves tied.
	order := append(q.order, "rowid ASC")
	stmt := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY %s LIMIT %d OFFSET %d`,
		coll.selectList(), quote(coll.table), where, strings.Join(order, ", "), q.limit, q.offset)
	rows, err := s.db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return store.DocumentList{}, classify(opListDocuments, collectionID, err)
	}
	defer rows.Close()
	list := store.DocumentList{Total: total, Documents: []store.Document{}}
	for rows.Next() {
		doc, err := coll.scan(rows, databaseID)
		if err != nil {
			return store.DocumentList{}, classify(opListDocuments, collectionID, err)
		}
		list.Documents = append(list.Documents, doc)
	}
	if err := rows.Err(); err != nil {
		return store.DocumentList{}, classify(opListDocuments, collectionID, err)
	}
	return list, nil
}
