// Where: cli/internal/schema/types.go
// What: Declarative schema types for the BaaS database and storage buckets.
// Why: Give the provisioner one immutable description of the target schema.
package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// AttributeKind is the column type of a collection attribute.
type AttributeKind string

const (
	KindString   AttributeKind = "string"
	KindInteger  AttributeKind = "integer"
	KindFloat    AttributeKind = "float"
	KindBoolean  AttributeKind = "boolean"
	KindDatetime AttributeKind = "datetime"
)

// IndexKind is the type of a collection index.
type IndexKind string

const (
	IndexKey      IndexKind = "key"
	IndexUnique   IndexKind = "unique"
	IndexFulltext IndexKind = "fulltext"
)

// Definition is the complete target schema: one database, its collections and
// the storage buckets. Slice order is provisioning order.
type Definition struct {
	Database    DatabaseSpec `yaml:"database" json:"database"`
	Collections []Collection `yaml:"collections" json:"collections"`
	Buckets     []Bucket     `yaml:"buckets,omitempty" json:"buckets,omitempty"`
}

// DatabaseSpec names the database every collection lives in.
type DatabaseSpec struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Collection declares a collection with its attributes and indexes.
type Collection struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name" json:"name"`
	Permissions []Permission `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	// DocumentSecurity enables per-document permissions on top of collection ones.
	DocumentSecurity bool        `yaml:"documentSecurity,omitempty" json:"documentSecurity,omitempty"`
	Attributes       []Attribute `yaml:"attributes" json:"attributes"`
	Indexes          []Index     `yaml:"indexes,omitempty" json:"indexes,omitempty"`
}

// Attribute declares a typed field. Size is set only for strings.
type Attribute struct {
	Key      string        `yaml:"key" json:"key"`
	Kind     AttributeKind `yaml:"type" json:"type"`
	Size     *int          `yaml:"size,omitempty" json:"size,omitempty"`
	Required bool          `yaml:"required" json:"required"`
	Default  any           `yaml:"default" json:"default"`
	Array    bool          `yaml:"array,omitempty" json:"array,omitempty"`
	Min      *float64      `yaml:"min,omitempty" json:"min,omitempty"`
	Max      *float64      `yaml:"max,omitempty" json:"max,omitempty"`
}

// Index declares an index over attributes of the same collection.
type Index struct {
	Key        string    `yaml:"key" json:"key"`
	Kind       IndexKind `yaml:"type" json:"type"`
	Attributes []string  `yaml:"attributes" json:"attributes"`
	// Orders holds ASC/DESC per attribute; empty means backend default.
	Orders []string `yaml:"orders,omitempty" json:"orders,omitempty"`
}

// Bucket declares a file storage bucket and its upload policy.
type Bucket struct {
	ID                string       `yaml:"id" json:"id"`
	Name              string       `yaml:"name" json:"name"`
	Permissions       []Permission `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	FileSecurity      bool         `yaml:"fileSecurity" json:"fileSecurity"`
	Enabled           bool         `yaml:"enabled" json:"enabled"`
	MaxFileSize       int64        `yaml:"maxFileSize" json:"maxFileSize"`
	AllowedExtensions []string     `yaml:"allowedExtensions,omitempty" json:"allowedExtensions,omitempty"`
	Compression       string       `yaml:"compression,omitempty" json:"compression,omitempty"`
	Encryption        bool         `yaml:"encryption" json:"encryption"`
	Antivirus         bool         `yaml:"antivirus" json:"antivirus"`
}

// Permission grants an action to a role, written "action:role" in YAML
// (read:any, create:users, update:user:42).
type Permission struct {
	Action string
	Role   string
}

// ParsePermission parses the "action:role" form.
func ParsePermission(value string) (Permission, error) {
	action, role, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || action == "" || role == "" {
		return Permission{}, fmt.Errorf("invalid permission %q: expected action:role", value)
	}
	return Permission{Action: strings.ToLower(action), Role: role}, nil
}

// String renders the permission in the BaaS wire form, e.g. read("any").
func (p Permission) String() string {
	return fmt.Sprintf("%s(%q)", p.Action, p.Role)
}

// Short renders the "action:role" form used in schema files.
func (p Permission) Short() string {
	return p.Action + ":" + p.Role
}

func (p Permission) MarshalYAML() (any, error) {
	return p.Short(), nil
}

func (p *Permission) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParsePermission(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.Short()), nil
}

func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Collection returns the collection with id.
func (d Definition) Collection(id string) (Collection, bool) {
	for _, c := range d.Collections {
		if c.ID == id {
			return c, true
		}
	}
	return Collection{}, false
}

// Attribute returns the attribute with key.
func (c Collection) Attribute(key string) (Attribute, bool) {
	for _, a := range c.Attributes {
		if a.Key == key {
			return a, true
		}
	}
	return Attribute{}, false
}

// Totals counts the objects a full provisioning run touches.
type Totals struct {
	Databases   int
	Buckets     int
	Collections int
	Attributes  int
	Indexes     int
}

// Objects is the sum of all counted objects.
func (t Totals) Objects() int {
	return t.Databases + t.Buckets + t.Collections + t.Attributes + t.Indexes
}

// Totals returns object counts for the definition.
func (d Definition) Totals() Totals {
	t := Totals{Databases: 1, Buckets: len(d.Buckets), Collections: len(d.Collections)}
	for _, c := range d.Collections {
		t.Attributes += len(c.Attributes)
		t.Indexes += len(c.Indexes)
	}
	return t
}

// Int returns a pointer to v, for Size fields in literals.
func Int(v int) *int { return &v }
