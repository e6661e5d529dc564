// Where: cli/internal/store/query.go
// What: Document queries and a client-side evaluator.
// Why: Services express filters once; backends without a query engine evaluate them here.
package store

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Query methods understood by every backend.
const (
	MethodEqual            = "equal"
	MethodNotEqual         = "notEqual"
	MethodSearch           = "search"
	MethodGreaterThanEqual = "greaterThanEqual"
	MethodLessThanEqual    = "lessThanEqual"
	MethodOrderAsc         = "orderAsc"
	MethodOrderDesc        = "orderDesc"
	MethodLimit            = "limit"
	MethodOffset           = "offset"
)

// System fields addressable by queries.
const (
	FieldID        = "$id"
	FieldCreatedAt = "$createdAt"
	FieldUpdatedAt = "$updatedAt"
)

// TimeFormat is the fixed-width UTC layout used for system timestamps so that
// string comparison orders them chronologically.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in TimeFormat (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// Query is one filter, ordering or paging instruction. It marshals to the
// BaaS JSON query form {"method":"equal","attribute":"isActive","values":[true]}.
type Query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

func Equal(attribute string, values ...any) Query {
	return Query{Method: MethodEqual, Attribute: attribute, Values: values}
}

func NotEqual(attribute string, value any) Query {
	return Query{Method: MethodNotEqual, Attribute: attribute, Values: []any{value}}
}

func Search(attribute, term string) Query {
	return Query{Method: MethodSearch, Attribute: attribute, Values: []any{term}}
}

func GreaterThanEqual(attribute string, value any) Query {
	return Query{Method: MethodGreaterThanEqual, Attribute: attribute, Values: []any{value}}
}

func LessThanEqual(attribute string, value any) Query {
	return Query{Method: MethodLessThanEqual, Attribute: attribute, Values: []any{value}}
}

func OrderAsc(attribute string) Query {
	return Query{Method: MethodOrderAsc, Attribute: attribute}
}

func OrderDesc(attribute string) Query {
	return Query{Method: MethodOrderDesc, Attribute: attribute}
}

func Limit(n int) Query {
	return Query{Method: MethodLimit, Values: []any{n}}
}

func Offset(n int) Query {
	return Query{Method: MethodOffset, Values: []any{n}}
}

// Field returns a document field, resolving system fields.
func Field(doc Document, name string) (any, bool) {
	switch name {
	case FieldID:
		return doc.ID, true
	case FieldCreatedAt:
		return FormatTime(doc.CreatedAt), true
	case FieldUpdatedAt:
		return FormatTime(doc.UpdatedAt), true
	}
	v, ok := doc.Data[name]
	return v, ok
}

// Apply filters, orders and pages docs. Total in the result counts every
// filtered match before paging. Without an explicit order, input order is kept.
func Apply(docs []Document, queries []Query) (DocumentList, error) {
	filtered := make([]Document, 0, len(docs))
	for _, doc := range docs {
		ok, err := matches(doc, queries)
		if err != nil {
			return DocumentList{}, err
		}
		if ok {
			filtered = append(filtered, doc)
		}
	}

	var orders []Query
	limit, offset := -1, 0
	for _, q := range queries {
		switch q.Method {
		case MethodOrderAsc, MethodOrderDesc:
			orders = append(orders, q)
		case MethodLimit:
			n, err := intValue(q)
			if err != nil {
				return DocumentList{}, err
			}
			limit = n
		case MethodOffset:
			n, err := intValue(q)
			if err != nil {
				return DocumentList{}, err
			}
			offset = n
		}
	}
	if len(orders) > 0 {
		sort.SliceStable(filtered, func(i, j int) bool {
			for _, o := range orders {
				a, _ := Field(filtered[i], o.Attribute)
				b, _ := Field(filtered[j], o.Attribute)
				c := compare(a, b)
				if c == 0 {
					continue
				}
				if o.Method == MethodOrderDesc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	total := len(filtered)
	if offset > len(filtered) {
		offset = len(filtered)
	}
	page := filtered[offset:]
	if limit >= 0 && limit < len(page) {
		page = page[:limit]
	}
	return DocumentList{Total: total, Documents: page}, nil
}

func matches(doc Document, queries []Query) (bool, error) {
	for _, q := range queries {
		switch q.Method {
		case MethodOrderAsc, MethodOrderDesc, MethodLimit, MethodOffset:
			continue
		}
		value, _ := Field(doc, q.Attribute)
		switch q.Method {
		case MethodEqual:
			found := false
			for _, want := range q.Values {
				if compare(value, want) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		case MethodNotEqual:
			for _, other := range q.Values {
				if compare(value, other) == 0 {
					return false, nil
				}
			}
		case MethodSearch:
			s, _ := value.(string)
			term := ""
			if len(q.Values) > 0 {
				term = fmt.Sprint(q.Values[0])
			}
			if !strings.Contains(strings.ToLower(s), strings.ToLower(term)) {
				return false, nil
			}
		case MethodGreaterThanEqual:
			if value == nil || len(q.Values) == 0 || compare(value, q.Values[0]) < 0 {
				return false, nil
			}
		case MethodLessThanEqual:
			if value == nil || len(q.Values) == 0 || compare(value, q.Values[0]) > 0 {
				return false, nil
			}
		default:
			return false, New(KindValidation, "query", q.Attribute, "unsupported query method "+q.Method)
		}
	}
	return true, nil
}

func intValue(q Query) (int, error) {
	if len(q.Values) == 0 {
		return 0, New(KindValidation, "query", q.Method, "missing value")
	}
	n, ok := number(q.Values[0])
	if !ok || n < 0 {
		return 0, New(KindValidation, "query", q.Method, fmt.Sprintf("invalid value %v", q.Values[0]))
	}
	return int(n), nil
}

// compare orders nil first, then numbers, booleans, then strings. Datetimes
// compare as strings, which is chronological for same-layout UTC values.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(stringValue(a), stringValue(b))
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return FormatTime(t)
	default:
		return fmt.Sprint(v)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
