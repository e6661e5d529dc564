// Where: cli/internal/seed/seed.go
// What: Demonstration rows for a provisioned restaurant schema.
// Why: Give a fresh target something to browse; this is data loading, not schema design.
package seed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/logging"
	"github.com/poruru/restaurant-baas/cli/internal/store"
	"github.com/poruru/restaurant-baas/cli/internal/ui"
)

// Category is one sample menu category.
type Category struct {
	Name        string
	Description string
	SortOrder   int
}

// MenuItem is one sample dish; Category indexes SampleCategories.
type MenuItem struct {
	Name         string
	Description  string
	Price        float64
	Category     int
	IsSpicy      bool
	IsVegetarian bool
	PrepTime     int
	Calories     int
}

var SampleCategories = []Category{
	{Name: "Appetizers", Description: "Start your meal with our delicious appetizers", SortOrder: 1},
	{Name: "Seafood Specialties", Description: "Fresh seafood dishes with authentic Khmer flavors", SortOrder: 2},
	{Name: "Traditional Khmer", Description: "Classic Cambodian dishes prepared with love", SortOrder: 3},
	{Name: "Beverages", Description: "Refreshing drinks and traditional beverages", SortOrder: 4},
}

var SampleMenuItems = []MenuItem{
	{Name: "Fresh Spring Rolls", Description: "Vietnamese-style spring rolls with shrimp and fresh herbs", Price: 8.90, Category: 0, PrepTime: 10, Calories: 180},
	{Name: "Grilled Barramundi", Description: "Grilled barramundi with lemongrass and Khmer spices", Price: 24.90, Category: 1, IsSpicy: true, PrepTime: 25, Calories: 320},
	{Name: "Amok Fish", Description: "Traditional Cambodian fish curry steamed in banana leaves", Price: 19.90, Category: 2, IsSpicy: true, PrepTime: 30, Calories: 280},
	{Name: "Iced Coffee", Description: "Strong Cambodian coffee served with condensed milk over ice", Price: 4.50, Category: 3, IsVegetarian: true, PrepTime: 5, Calories: 120},
}

// Result lists the documents created, in insertion order.
type Result struct {
	Categories []store.Document
	MenuItems  []store.Document
}

// Seeder inserts the sample rows. It does not look for existing rows, so
// every run inserts again.
type Seeder struct {
	Docs       store.DocumentStore
	DatabaseID string
	Categories string
	MenuItems  string
	Out        io.Writer
	Logger     *zap.Logger
	Now        func() time.Time
	NewID      func() string
}

// Seed inserts the categories, then the menu items referencing them. The
// first failure stops seeding; rows created so far are returned with it.
func (s *Seeder) Seed(ctx context.Context) (Result, error) {
	var result Result
	if s == nil || s.Docs == nil {
		return result, fmt.Errorf("document store is not configured")
	}
	console := ui.New(s.Out)
	logger := logging.OrNop(s.Logger)
	now := s.Now
	if now == nil {
		now = time.Now
	}
	newID := s.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	console.Header("🌱", "Seeding sample data...")
	for _, c := range SampleCategories {
		stamp := now().UTC().Format(time.RFC3339)
		doc, err := s.Docs.CreateDocument(ctx, s.DatabaseID, s.Categories, newID(), map[string]any{
			"name":        c.Name,
			"description": c.Description,
			"sortOrder":   c.SortOrder,
			"isActive":    true,
			"createdAt":   stamp,
			"updatedAt":   stamp,
		})
		if err != nil {
			console.Fail(fmt.Sprintf("Category %s: %v", c.Name, err))
			return result, fmt.Errorf("seed category %s: %w", c.Name, err)
		}
		result.Categories = append(result.Categories, doc)
		logger.Debug("seeded category", zap.String("id", doc.ID), zap.String("name", c.Name))
		console.Success("Category created: " + c.Name)
	}

	for _, item := range SampleMenuItems {
		stamp := now().UTC().Format(time.RFC3339)
		doc, err := s.Docs.CreateDocument(ctx, s.DatabaseID, s.MenuItems, newID(), map[string]any{
			"name":         item.Name,
			"description":  item.Description,
			"price":        item.Price,
			"categoryId":   result.Categories[item.Category].ID,
			"isSpicy":      item.IsSpicy,
			"isVegetarian": item.IsVegetarian,
			"isAvailable":  true,
			"prepTime":     item.PrepTime,
			"calories":     item.Calories,
			"sortOrder":    1,
			"createdAt":    stamp,
			"updatedAt":    stamp,
		})
		if err != nil {
			console.Fail(fmt.Sprintf("Menu item %s: %v", item.Name, err))
			return result, fmt.Errorf("seed menu item %s: %w", item.Name, err)
		}
		result.MenuItems = append(result.MenuItems, doc)
		logger.Debug("seeded menu item", zap.String("id", doc.ID), zap.String("name", item.Name))
		console.Success("Menu item created: " + item.Name)
	}

	console.Success("Sample data seeded successfully!")
	return result, nil
}
