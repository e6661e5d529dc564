package services

import (
	"encoding/json"
	"testing"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

func TestDecodeNormalisesBackendNumbers(t *testing.T) {
	docs := []store.Document{
		{ID: "a", Data: map[string]any{"total": 12, "status": "pending", "tableNumber": float64(4), "notes": nil}},
		{ID: "b", Data: map[string]any{"total": json.Number("7.5"), "status": "served", "unknown": true}},
	}
	orders, err := DecodeAll[Order](docs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if orders[0].ID != "a" || orders[0].Total != 12 || orders[0].TableNumber != 4 || orders[0].Notes != "" {
		t.Fatalf("unexpected first order %+v", orders[0])
	}
	if orders[1].Total != 7.5 || orders[1].Status != "served" {
		t.Fatalf("unexpected second order %+v", orders[1])
	}
}

func TestDecodeMenuItem(t *testing.T) {
	var item MenuItem
	doc := store.Document{ID: "m1", Data: map[string]any{"name": "Latte", "price": 4, "isAvailable": true, "sortOrder": "2"}}
	if err := Decode(doc, &item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.Name != "Latte" || item.Price != 4 || !item.IsAvailable || item.SortOrder != 2 {
		t.Fatalf("unexpected item %+v", item)
	}
	var bad Order
	if err := Decode(store.Document{ID: "x", Data: map[string]any{"total": []any{"nope"}}}, &bad); err == nil {
		t.Fatalf("expected decode error for a list total")
	}
}
