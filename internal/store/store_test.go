// Where: cli/internal/store/store_test.go
// What: Tests for store helpers.
// Why: Error kinds and capability lookups are shared by every backend.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("ensure: %w", Conflict("create collection", "orders"))
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if IsNotFound(err) {
		t.Fatalf("conflict must not match not found")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("unexpected kind: %s", KindOf(err))
	}
	if KindOf(errors.New("dial tcp: refused")) != KindTransport {
		t.Fatal("unclassified errors are transport errors")
	}
	if KindOf(nil) != "" {
		t.Fatal("nil error has no kind")
	}
	if got := err.Error(); got != "ensure: create collection orders: conflict: already exists" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestErrorIsDoesNotMatchDistinctDetailedErrors(t *testing.T) {
	a := New(KindValidation, "create attribute", "a", "bad")
	b := New(KindValidation, "create attribute", "b", "bad")
	if errors.Is(a, b) {
		t.Fatal("detailed errors only match themselves")
	}
	if !errors.Is(a, ErrValidation) {
		t.Fatal("expected sentinel match")
	}
}

func TestKindFromStatus(t *testing.T) {
	cases := map[int]Kind{
		409: KindConflict,
		404: KindNotFound,
		400: KindValidation,
		401: KindPermission,
		403: KindPermission,
		500: KindTransport,
		503: KindTransport,
	}
	for status, want := range cases {
		if got := KindFromStatus(status); got != want {
			t.Fatalf("status %d: expected %s, got %s", status, want, got)
		}
	}
}

func sampleDocs() []Document {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Document{
		{ID: "a", CreatedAt: base, Data: map[string]any{"name": "Amok Fish", "price": 19.9, "isAvailable": true, "sortOrder": 2}},
		{ID: "b", CreatedAt: base.Add(time.Hour), Data: map[string]any{"name": "Iced Coffee", "price": 4.5, "isAvailable": true, "sortOrder": 1}},
		{ID: "c", CreatedAt: base.Add(2 * time.Hour), Data: map[string]any{"name": "Spring Rolls", "price": 8.9, "isAvailable": false, "sortOrder": 3}},
	}
}

func ids(list DocumentList) []string {
	out := make([]string, 0, len(list.Documents))
	for _, d := range list.Documents {
		out = append(out, d.ID)
	}
	return out
}

func TestApplyFilterAndOrder(t *testing.T) {
	list, err := Apply(sampleDocs(), []Query{Equal("isAvailable", true), OrderAsc("sortOrder")})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := fmt.Sprint(ids(list)); got != "[b a]" || list.Total != 2 {
		t.Fatalf("unexpected result: %s total=%d", got, list.Total)
	}
}

func TestApplyPagingKeepsTotal(t *testing.T) {
	list, err := Apply(sampleDocs(), []Query{OrderDesc(FieldCreatedAt), Limit(1), Offset(1)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := fmt.Sprint(ids(list)); got != "[b]" || list.Total != 3 {
		t.Fatalf("unexpected result: %s total=%d", got, list.Total)
	}
}

func TestApplySearchAndRange(t *testing.T) {
	list, err := Apply(sampleDocs(), []Query{Search("name", "coffee")})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := fmt.Sprint(ids(list)); got != "[b]" {
		t.Fatalf("unexpected search result: %s", got)
	}

	list, err = Apply(sampleDocs(), []Query{GreaterThanEqual("price", 8), LessThanEqual("price", 20)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := fmt.Sprint(ids(list)); got != "[a c]" {
		t.Fatalf("unexpected range result: %s", got)
	}

	since := FormatTime(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	list, err = Apply(sampleDocs(), []Query{GreaterThanEqual(FieldCreatedAt, since)})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := fmt.Sprint(ids(list)); got != "[b c]" {
		t.Fatalf("unexpected time range result: %s", got)
	}
}

func TestApplyRejectsUnknownMethod(t *testing.T) {
	_, err := Apply(sampleDocs(), []Query{{Method: "between", Attribute: "price"}})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQueryJSONForm(t *testing.T) {
	raw, err := json.Marshal(Equal("isActive", true))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"method":"equal","attribute":"isActive","values":[true]}` {
		t.Fatalf("unexpected json: %s", raw)
	}
	raw, _ = json.Marshal(Limit(25))
	if string(raw) != `{"method":"limit","values":[25]}` {
		t.Fatalf("unexpected json: %s", raw)
	}
}

func TestCapabilityHelpers(t *testing.T) {
	if _, err := Documents(struct{}{}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if err := Close(struct{}{}); err != nil {
		t.Fatalf("close of plain value: %v", err)
	}
}
