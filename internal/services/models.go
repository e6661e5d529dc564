// Where: cli/internal/services/models.go
// What: Typed views of restaurant documents.
// Why: Backends return numbers as int, float64 or json.Number; callers want one shape.
package services

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

type Category struct {
	ID          string `json:"$id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SortOrder   int    `json:"sortOrder"`
	IsActive    bool   `json:"isActive"`
}

type MenuItem struct {
	ID           string  `json:"$id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	CategoryID   string  `json:"categoryId"`
	Image        string  `json:"image"`
	Ingredients  string  `json:"ingredients"`
	Allergens    string  `json:"allergens"`
	IsSpicy      bool    `json:"isSpicy"`
	IsVegetarian bool    `json:"isVegetarian"`
	IsAvailable  bool    `json:"isAvailable"`
	PrepTime     int     `json:"prepTime"`
	Calories     int     `json:"calories"`
	SortOrder    int     `json:"sortOrder"`
}

type Order struct {
	ID            string  `json:"$id"`
	OrderNumber   string  `json:"orderNumber"`
	CustomerID    string  `json:"customerId"`
	CustomerName  string  `json:"customerName"`
	OrderType     string  `json:"orderType"`
	Status        string  `json:"status"`
	TableNumber   int     `json:"tableNumber"`
	Subtotal      float64 `json:"subtotal"`
	Tax           float64 `json:"tax"`
	Tip           float64 `json:"tip"`
	Total         float64 `json:"total"`
	PaymentStatus string  `json:"paymentStatus"`
	PaymentMethod string  `json:"paymentMethod"`
	EstimatedTime int     `json:"estimatedTime"`
	Notes         string  `json:"notes"`
	CreatedAt     string  `json:"createdAt"`
}

type OrderItem struct {
	ID                  string  `json:"$id"`
	OrderID             string  `json:"orderId"`
	MenuItemID          string  `json:"menuItemId"`
	MenuItemName        string  `json:"menuItemName"`
	Quantity            int     `json:"quantity"`
	UnitPrice           float64 `json:"unitPrice"`
	TotalPrice          float64 `json:"totalPrice"`
	Status              string  `json:"status"`
	SpecialInstructions string  `json:"specialInstructions"`
}

// Decode fills out (a pointer to one of the models) from doc. Attributes the
// model does not name are ignored and nulls leave zero values.
func Decode(doc store.Document, out any) error {
	fields := make(map[string]any, len(doc.Data)+1)
	for k, v := range doc.Data {
		if v != nil {
			fields[k] = v
		}
	}
	fields[store.FieldID] = doc.ID
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(fields); err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return nil
}

// DecodeAll decodes every document of a list into models of type T.
func DecodeAll[T any](docs []store.Document) ([]T, error) {
	out := make([]T, len(docs))
	for i, doc := range docs {
		if err := Decode(doc, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
