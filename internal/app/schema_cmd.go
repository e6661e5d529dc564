// Where: cli/internal/app/schema_cmd.go
// What: Schema inspection commands.
// Why: Print or validate a definition without touching a backend.
package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/config"
	"github.com/poruru/restaurant-baas/cli/internal/schema"
	"github.com/poruru/restaurant-baas/cli/internal/ui"
)

// SchemaCmd groups schema subcommands.
type SchemaCmd struct {
	Show     SchemaShowCmd     `cmd:"" help:"Print a schema definition as YAML"`
	Validate SchemaValidateCmd `cmd:"" help:"Validate a schema definition"`
}

type SchemaShowCmd struct {
	File string `arg:"" optional:"" help:"Schema file (default: built-in restaurant schema)"`
}

type SchemaValidateCmd struct {
	File string `arg:"" optional:"" help:"Schema file (default: built-in restaurant schema)"`
}

func runSchemaShow(cli CLI, deps Dependencies, _ *zap.Logger) int {
	if cli.Schema.Show.File == "" {
		_, err := deps.Out.Write(schema.RestaurantYAML())
		if err != nil {
			return exitWithError(deps.ErrOut, err)
		}
		return 0
	}
	def, err := loadDefinition(cli.Schema.Show.File, config.Profile{}, false)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	payload, err := schema.Marshal(def)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	if _, err := deps.Out.Write(payload); err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	return 0
}

func runSchemaValidate(cli CLI, deps Dependencies, _ *zap.Logger) int {
	console := ui.New(deps.Out)
	name := cli.Schema.Validate.File
	if name == "" {
		name = "built-in restaurant schema"
	}
	def, err := loadDefinition(cli.Schema.Validate.File, config.Profile{}, true)
	if err != nil {
		console.Fail(name + " is invalid")
		for _, problem := range flattenErrors(err) {
			console.ItemPlain(problem.Error())
		}
		return 1
	}
	totals := def.Totals()
	console.Success(name + " is valid")
	console.Item("Database", def.Database.ID)
	console.Item("Buckets", totals.Buckets)
	console.Item("Collections", totals.Collections)
	console.Item("Attributes", totals.Attributes)
	console.Item("Indexes", totals.Indexes)
	console.Item("Objects", fmt.Sprintf("%d", totals.Objects()))
	return 0
}

// flattenErrors unpacks errors.Join results into their parts.
func flattenErrors(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}
