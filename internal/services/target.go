// Where: cli/internal/services/target.go
// What: Identifiers of the provisioned objects the services operate on.
// Why: Services receive their database, collection and bucket ids explicitly instead of reading globals.
package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
)

// Collections maps each role to its collection id.
type Collections struct {
	Users      string
	Categories string
	MenuItems  string
	Orders     string
	OrderItems string
}

// Buckets maps each role to its bucket id.
type Buckets struct {
	Images    string
	Documents string
}

// Target locates the provisioned schema.
type Target struct {
	DatabaseID  string
	Collections Collections
	Buckets     Buckets
}

// DefaultTarget returns the ids of the embedded restaurant schema.
func DefaultTarget() Target {
	return Target{
		DatabaseID: "restaurant-db",
		Collections: Collections{
			Users:      "users",
			Categories: "categories",
			MenuItems:  "menuItems",
			Orders:     "orders",
			OrderItems: "orderItems",
		},
		Buckets: Buckets{Images: "images", Documents: "documents"},
	}
}

// TargetFor uses def's database id and keeps the default collection and
// bucket ids.
func TargetFor(def schema.Definition) Target {
	t := DefaultTarget()
	if def.Database.ID != "" {
		t.DatabaseID = def.Database.ID
	}
	return t
}

// Clock supplies timestamps and document ids; zero values use the real clock
// and random UUIDs.
type Clock struct {
	Now   func() time.Time
	NewID func() string
}

func (c Clock) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c Clock) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
