// Where: cli/internal/schema/load.go
// What: Schema file loading and structural validation.
// Why: Validate hand-written YAML against a JSON Schema before decoding it.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

const definitionSchemaURL = "https://rbaas.local/schema/definition.schema.json"

//go:embed definition.schema.json
var definitionSchemaJSON []byte

//go:embed restaurant.yaml
var restaurantYAML []byte

var (
	schemaOnce     sync.Once
	schemaErr      error
	compiledSchema *jsonschema.Schema
)

// Load reads and parses a schema definition file.
func Load(path string) (Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read schema %s: %w", path, err)
	}
	def, err := Parse(content)
	if err != nil {
		return Definition{}, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return def, nil
}

// Parse validates YAML content against the definition JSON Schema and decodes it.
// Semantic checks (index references, defaults) are left to Definition.Validate.
func Parse(content []byte) (Definition, error) {
	sch, err := loadSchema()
	if err != nil {
		return Definition{}, err
	}

	jsonData, err := k8syaml.YAMLToJSON(content)
	if err != nil {
		return Definition{}, fmt.Errorf("convert yaml to json: %w", err)
	}
	var document any
	if err := json.Unmarshal(jsonData, &document); err != nil {
		return Definition{}, fmt.Errorf("decode json: %w", err)
	}
	if err := sch.Validate(document); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	var def Definition
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("decode schema: %w", err)
	}
	normalize(&def)
	return def, nil
}

// Restaurant returns the built-in restaurant schema.
func Restaurant() Definition {
	def, err := Parse(restaurantYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded restaurant schema is invalid: %v", err))
	}
	return def
}

// RestaurantYAML returns the raw embedded restaurant schema.
func RestaurantYAML() []byte {
	return append([]byte(nil), restaurantYAML...)
}

// Marshal renders a definition back to YAML.
func Marshal(def Definition) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(def); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(definitionSchemaURL, bytes.NewReader(definitionSchemaJSON)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(definitionSchemaURL)
	})
	return compiledSchema, schemaErr
}

func normalize(def *Definition) {
	if def.Database.Name == "" {
		def.Database.Name = def.Database.ID
	}
	for i := range def.Collections {
		c := &def.Collections[i]
		if c.Name == "" {
			c.Name = c.ID
		}
		for j := range c.Attributes {
			if c.Attributes[j].Kind == "double" {
				c.Attributes[j].Kind = KindFloat
			}
		}
	}
	for i := range def.Buckets {
		if def.Buckets[i].Name == "" {
			def.Buckets[i].Name = def.Buckets[i].ID
		}
	}
}
