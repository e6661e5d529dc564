// Where: cli/internal/store/convert.go
// What: Conversions from schema specs to store models and document checks.
// Why: Local backends (memory, sqlite, aws) share one reading of the schema.
package store

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
)

// UniqueID is the placeholder id asking the store to generate one.
const UniqueID = "unique()"

func CollectionFromSpec(databaseID string, spec schema.Collection) Collection {
	return Collection{
		ID:               spec.ID,
		DatabaseID:       databaseID,
		Name:             spec.Name,
		Permissions:      PermissionStrings(spec.Permissions),
		DocumentSecurity: spec.DocumentSecurity,
		Enabled:          true,
	}
}

func AttributeFromSpec(spec schema.Attribute) Attribute {
	attr := Attribute{
		Key:      spec.Key,
		Type:     string(spec.Kind),
		Status:   StatusAvailable,
		Required: spec.Required,
		Array:    spec.Array,
		Default:  spec.Default,
	}
	if spec.Size != nil {
		attr.Size = *spec.Size
	}
	return attr
}

func IndexFromSpec(spec schema.Index) Index {
	return Index{
		Key:        spec.Key,
		Type:       string(spec.Kind),
		Status:     StatusAvailable,
		Attributes: append([]string(nil), spec.Attributes...),
		Orders:     append([]string(nil), spec.Orders...),
	}
}

func BucketFromSpec(spec schema.Bucket) Bucket {
	return Bucket{
		ID:                spec.ID,
		Name:              spec.Name,
		Permissions:       PermissionStrings(spec.Permissions),
		FileSecurity:      spec.FileSecurity,
		Enabled:           spec.Enabled,
		MaximumFileSize:   spec.MaxFileSize,
		AllowedExtensions: append([]string(nil), spec.AllowedExtensions...),
		Compression:       spec.Compression,
		Encryption:        spec.Encryption,
		Antivirus:         spec.Antivirus,
	}
}

// PrepareDocument checks data against the collection attributes and returns a
// copy with defaults filled in. With partial set (updates), required
// attributes may be absent and no defaults are applied.
func PrepareDocument(collectionID string, attrs []Attribute, data map[string]any, partial bool) (map[string]any, error) {
	byKey := make(map[string]Attribute, len(attrs))
	for _, a := range attrs {
		byKey[a.Key] = a
	}
	out := make(map[string]any, len(data))
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attr, ok := byKey[k]
		if !ok {
			return nil, New(KindValidation, "write document", collectionID, fmt.Sprintf("unknown attribute %q", k))
		}
		v := data[k]
		if v != nil {
			if err := checkValue(attr, v); err != nil {
				return nil, New(KindValidation, "write document", collectionID, fmt.Sprintf("attribute %q: %v", k, err))
			}
		}
		out[k] = v
	}
	if partial {
		return out, nil
	}
	for _, a := range attrs {
		if v, ok := out[a.Key]; ok && v != nil {
			continue
		}
		if a.Default != nil {
			out[a.Key] = a.Default
			continue
		}
		if a.Required {
			return nil, New(KindValidation, "write document", collectionID, fmt.Sprintf("missing required attribute %q", a.Key))
		}
	}
	return out, nil
}

func checkValue(attr Attribute, v any) error {
	if attr.Array {
		items, ok := v.([]any)
		if !ok {
			if s, isStrings := v.([]string); isStrings {
				for _, item := range s {
					if err := checkScalar(attr, item); err != nil {
						return err
					}
				}
				return nil
			}
			return fmt.Errorf("expected an array")
		}
		for _, item := range items {
			if err := checkScalar(attr, item); err != nil {
				return err
			}
		}
		return nil
	}
	return checkScalar(attr, v)
}

func checkScalar(attr Attribute, v any) error {
	switch schema.AttributeKind(attr.Type) {
	case schema.KindString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a string")
		}
		if attr.Size > 0 && len(s) > attr.Size {
			return fmt.Errorf("value longer than %d", attr.Size)
		}
	case schema.KindInteger:
		n, ok := number(v)
		if !ok || n != math.Trunc(n) {
			return fmt.Errorf("expected an integer")
		}
	case schema.KindFloat:
		if _, ok := number(v); !ok {
			return fmt.Errorf("expected a number")
		}
	case schema.KindBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected a boolean")
		}
	case schema.KindDatetime:
		switch t := v.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339, t); err != nil {
				return fmt.Errorf("expected an RFC 3339 datetime")
			}
		default:
			return fmt.Errorf("expected a datetime")
		}
	}
	return nil
}
