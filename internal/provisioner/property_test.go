// Where: cli/internal/provisioner/property_test.go
// What: Property tests for provisioning.
// Why: Interrupted runs must converge and reports must keep declaration order.
package provisioner

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/store/memory"
)

var propertyKinds = []schema.AttributeKind{
	schema.KindString, schema.KindInteger, schema.KindFloat, schema.KindBoolean, schema.KindDatetime,
}

// generatedDefinition builds a valid definition whose shape is driven by the
// generator inputs.
func generatedDefinition(collections, attributes, indexes, buckets int) schema.Definition {
	def := schema.Definition{Database: schema.DatabaseSpec{ID: "prop-db", Name: "Property DB"}}
	for b := 0; b < buckets; b++ {
		def.Buckets = append(def.Buckets, schema.Bucket{ID: fmt.Sprintf("bucket%d", b), Enabled: true})
	}
	for c := 0; c < collections; c++ {
		col := schema.Collection{ID: fmt.Sprintf("col%d", c)}
		for a := 0; a < attributes; a++ {
			kind := propertyKinds[(a+c)%len(propertyKinds)]
			attr := schema.Attribute{Key: fmt.Sprintf("attr%d", a), Kind: kind}
			if kind == schema.KindString {
				attr.Size = schema.Int(32)
			}
			col.Attributes = append(col.Attributes, attr)
		}
		for i := 0; i < indexes; i++ {
			col.Indexes = append(col.Indexes, schema.Index{
				Key:        fmt.Sprintf("idx%d", i),
				Kind:       schema.IndexKey,
				Attributes: []string{col.Attributes[i%len(col.Attributes)].Key},
			})
		}
		def.Collections = append(def.Collections, col)
	}
	return def
}

func TestProperty_ProvisionConvergesFromAnyInterruption(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a full run after an interrupted run succeeds and a further run is all already_exists", prop.ForAll(
		func(collections, attributes, indexes, buckets, budget int) bool {
			def := generatedDefinition(collections, attributes, indexes, buckets)
			if err := def.Validate(); err != nil {
				return false
			}
			mem := memory.New()
			ctx := context.Background()

			(&Provisioner{Store: &interruptedStore{Store: mem, budget: budget}}).Provision(ctx, def)

			recovered := (&Provisioner{Store: mem}).Provision(ctx, def)
			if !recovered.Success() || recovered.Counts().Total() != def.Totals().Objects() {
				return false
			}
			state := mem.Snapshot()

			again := (&Provisioner{Store: mem}).Provision(ctx, def)
			counts := again.Counts()
			return again.Success() &&
				counts.AlreadyExists == def.Totals().Objects() &&
				counts.Created == 0 &&
				reflect.DeepEqual(state, mem.Snapshot())
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 6),
		gen.IntRange(0, 3),
		gen.IntRange(0, 2),
		gen.IntRange(0, 60),
	))

	properties.Property("report order follows declaration order", prop.ForAll(
		func(collections, attributes int) bool {
			def := generatedDefinition(collections, attributes, 1, 1)
			report := (&Provisioner{Store: memory.New()}).Provision(context.Background(), def)
			pos := 2 // database, bucket
			for _, c := range def.Collections {
				if report.Results[pos].Kind != KindCollection || report.Results[pos].ID != c.ID {
					return false
				}
				pos++
				for _, a := range c.Attributes {
					if report.Results[pos].ID != a.Key || report.Results[pos].Parent != c.ID {
						return false
					}
					pos++
				}
				pos += len(c.Indexes)
			}
			return pos == len(report.Results)
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
