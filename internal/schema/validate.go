// Where: cli/internal/schema/validate.go
// What: Semantic validation of schema definitions.
// Why: Catch definition errors locally before any remote call is issued.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrInvalidIndexReference marks an index naming an attribute the collection does not declare.
	ErrInvalidIndexReference = errors.New("invalid index reference")
	// ErrInvalidAttribute marks an attribute whose declaration cannot be submitted.
	ErrInvalidAttribute = errors.New("invalid attribute")
	// ErrInvalidSchema marks structural problems (ids, duplicates, bucket policy).
	ErrInvalidSchema = errors.New("invalid schema")
)

var validActions = map[string]struct{}{
	"read": {}, "create": {}, "update": {}, "delete": {}, "write": {},
}

// Problem is one validation finding, located by a dotted path.
type Problem struct {
	Path string
	Err  error
}

func (p Problem) Error() string {
	return fmt.Sprintf("%s: %v", p.Path, p.Err)
}

func (p Problem) Unwrap() error {
	return p.Err
}

// Validate checks the whole definition and returns every problem joined
// (nil when valid). errors.Is works against the sentinel errors above.
func (d Definition) Validate() error {
	var problems []error
	add := func(path string, err error) {
		problems = append(problems, Problem{Path: path, Err: err})
	}

	if strings.TrimSpace(d.Database.ID) == "" {
		add("database.id", fmt.Errorf("%w: id is required", ErrInvalidSchema))
	}

	seenCollections := map[string]struct{}{}
	for i, c := range d.Collections {
		path := fmt.Sprintf("collections[%d]", i)
		if c.ID != "" {
			path = "collections." + c.ID
		}
		if strings.TrimSpace(c.ID) == "" {
			add(path+".id", fmt.Errorf("%w: id is required", ErrInvalidSchema))
		} else if _, dup := seenCollections[c.ID]; dup {
			add(path, fmt.Errorf("%w: duplicate collection id", ErrInvalidSchema))
		}
		seenCollections[c.ID] = struct{}{}
		for _, perm := range c.Permissions {
			if err := ValidatePermission(perm); err != nil {
				add(path+".permissions", err)
			}
		}

		seenAttrs := map[string]struct{}{}
		for _, attr := range c.Attributes {
			attrPath := path + ".attributes." + attr.Key
			if _, dup := seenAttrs[attr.Key]; dup {
				add(attrPath, fmt.Errorf("%w: duplicate attribute key", ErrInvalidAttribute))
			}
			seenAttrs[attr.Key] = struct{}{}
			if err := ValidateAttribute(attr); err != nil {
				add(attrPath, err)
			}
		}

		seenIndexes := map[string]struct{}{}
		for _, idx := range c.Indexes {
			idxPath := path + ".indexes." + idx.Key
			if _, dup := seenIndexes[idx.Key]; dup {
				add(idxPath, fmt.Errorf("%w: duplicate index key", ErrInvalidSchema))
			}
			seenIndexes[idx.Key] = struct{}{}
			if err := CheckIndex(c, idx); err != nil {
				add(idxPath, err)
			}
		}
	}

	seenBuckets := map[string]struct{}{}
	for i, b := range d.Buckets {
		path := fmt.Sprintf("buckets[%d]", i)
		if b.ID != "" {
			path = "buckets." + b.ID
		}
		if _, dup := seenBuckets[b.ID]; dup {
			add(path, fmt.Errorf("%w: duplicate bucket id", ErrInvalidSchema))
		}
		seenBuckets[b.ID] = struct{}{}
		if err := ValidateBucket(b); err != nil {
			add(path, err)
		}
	}

	return errors.Join(problems...)
}

// ValidatePermission checks the action and role of a grant.
func ValidatePermission(p Permission) error {
	if _, ok := validActions[p.Action]; !ok {
		return fmt.Errorf("%w: unsupported permission action %q", ErrInvalidSchema, p.Action)
	}
	switch {
	case p.Role == "any", p.Role == "users", p.Role == "guests":
		return nil
	case strings.HasPrefix(p.Role, "user:"), strings.HasPrefix(p.Role, "team:"), strings.HasPrefix(p.Role, "label:"):
		if strings.TrimSpace(p.Role[strings.Index(p.Role, ":")+1:]) == "" {
			return fmt.Errorf("%w: permission role %q has no id", ErrInvalidSchema, p.Role)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported permission role %q", ErrInvalidSchema, p.Role)
	}
}

// ValidateAttribute checks one attribute declaration in isolation.
func ValidateAttribute(a Attribute) error {
	if strings.TrimSpace(a.Key) == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidAttribute)
	}
	switch a.Kind {
	case KindString:
		if a.Size == nil || *a.Size <= 0 {
			return fmt.Errorf("%w: string attribute %s requires a positive size", ErrInvalidAttribute, a.Key)
		}
	case KindInteger, KindFloat, KindBoolean, KindDatetime:
		if a.Size != nil {
			return fmt.Errorf("%w: size is only allowed on string attributes (%s is %s)", ErrInvalidAttribute, a.Key, a.Kind)
		}
	default:
		return fmt.Errorf("%w: unsupported attribute type %q for %s", ErrInvalidAttribute, a.Kind, a.Key)
	}
	if (a.Min != nil || a.Max != nil) && a.Kind != KindInteger && a.Kind != KindFloat {
		return fmt.Errorf("%w: min/max are only allowed on numeric attributes (%s)", ErrInvalidAttribute, a.Key)
	}
	if a.Min != nil && a.Max != nil && *a.Min > *a.Max {
		return fmt.Errorf("%w: min is greater than max for %s", ErrInvalidAttribute, a.Key)
	}
	if a.Default == nil {
		return nil
	}
	if a.Array {
		return fmt.Errorf("%w: array attribute %s cannot declare a default", ErrInvalidAttribute, a.Key)
	}
	if err := checkDefault(a); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAttribute, a.Key, err)
	}
	return nil
}

func checkDefault(a Attribute) error {
	switch a.Kind {
	case KindString:
		s, ok := a.Default.(string)
		if !ok {
			return fmt.Errorf("default %v is not a string", a.Default)
		}
		if len(s) > *a.Size {
			return fmt.Errorf("default is longer than size %d", *a.Size)
		}
	case KindInteger:
		n, ok := numeric(a.Default)
		if !ok || n != math.Trunc(n) {
			return fmt.Errorf("default %v is not an integer", a.Default)
		}
		return checkRange(a, n)
	case KindFloat:
		n, ok := numeric(a.Default)
		if !ok {
			return fmt.Errorf("default %v is not a number", a.Default)
		}
		return checkRange(a, n)
	case KindBoolean:
		if _, ok := a.Default.(bool); !ok {
			return fmt.Errorf("default %v is not a boolean", a.Default)
		}
	case KindDatetime:
		s, ok := a.Default.(string)
		if !ok {
			return fmt.Errorf("default %v is not a datetime string", a.Default)
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("default %q is not RFC 3339", s)
		}
	}
	return nil
}

func checkRange(a Attribute, n float64) error {
	if a.Min != nil && n < *a.Min {
		return fmt.Errorf("default %v is below min %v", n, *a.Min)
	}
	if a.Max != nil && n > *a.Max {
		return fmt.Errorf("default %v is above max %v", n, *a.Max)
	}
	return nil
}

// CheckIndex verifies the index kind and that every referenced attribute is
// declared on the collection.
func CheckIndex(c Collection, idx Index) error {
	if strings.TrimSpace(idx.Key) == "" {
		return fmt.Errorf("%w: index key is required", ErrInvalidSchema)
	}
	switch idx.Kind {
	case IndexKey, IndexUnique, IndexFulltext:
	default:
		return fmt.Errorf("%w: unsupported index type %q", ErrInvalidSchema, idx.Kind)
	}
	if len(idx.Attributes) == 0 {
		return fmt.Errorf("%w: index %s references no attributes", ErrInvalidIndexReference, idx.Key)
	}
	for _, key := range idx.Attributes {
		if _, ok := c.Attribute(key); !ok {
			return fmt.Errorf("%w: index %s references unknown attribute %q", ErrInvalidIndexReference, idx.Key, key)
		}
	}
	if len(idx.Orders) > 0 && len(idx.Orders) != len(idx.Attributes) {
		return fmt.Errorf("%w: index %s has %d orders for %d attributes", ErrInvalidSchema, idx.Key, len(idx.Orders), len(idx.Attributes))
	}
	for _, order := range idx.Orders {
		if o := strings.ToUpper(order); o != "ASC" && o != "DESC" {
			return fmt.Errorf("%w: index %s has unsupported order %q", ErrInvalidSchema, idx.Key, order)
		}
	}
	return nil
}

// ValidateBucket checks the bucket id and upload policy.
func ValidateBucket(b Bucket) error {
	if strings.TrimSpace(b.ID) == "" {
		return fmt.Errorf("%w: bucket id is required", ErrInvalidSchema)
	}
	if b.MaxFileSize < 0 {
		return fmt.Errorf("%w: bucket %s has a negative maxFileSize", ErrInvalidSchema, b.ID)
	}
	switch b.Compression {
	case "", "none", "gzip", "zstd":
	default:
		return fmt.Errorf("%w: bucket %s has unsupported compression %q", ErrInvalidSchema, b.ID, b.Compression)
	}
	for _, perm := range b.Permissions {
		if err := ValidatePermission(perm); err != nil {
			return err
		}
	}
	for _, ext := range b.AllowedExtensions {
		if strings.HasPrefix(ext, ".") || strings.TrimSpace(ext) == "" {
			return fmt.Errorf("%w: bucket %s extension %q must be bare (jpg, not .jpg)", ErrInvalidSchema, b.ID, ext)
		}
	}
	return nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
