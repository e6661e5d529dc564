// Where: cli/internal/app/provision.go
// What: Provision command implementation.
// Why: Apply a schema definition to the selected backend and report per object.
package app

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/config"
	"github.com/poruru/restaurant-baas/cli/internal/provisioner"
	"github.com/poruru/restaurant-baas/cli/internal/schema"
)

type ProvisionCmd struct {
	Schema string `short:"s" help:"Schema definition file (default: built-in restaurant schema)"`
	Output string `short:"o" default:"text" enum:"text,json" help:"Report format: text or json"`
}

// loadDefinition reads path, or the built-in schema when empty, and applies the
// connection's database override. Provisioning passes strict=false: index
// references are then reported per collection by the provisioner.
func loadDefinition(path string, conn config.Profile, strict bool) (schema.Definition, error) {
	def := schema.Restaurant()
	if path != "" {
		loaded, err := schema.Load(path)
		if err != nil {
			return schema.Definition{}, err
		}
		def = loaded
	}
	if conn.Database != "" {
		def.Database.ID = conn.Database
	}
	if !strict {
		return def, nil
	}
	if err := def.Validate(); err != nil {
		return schema.Definition{}, err
	}
	return def, nil
}

func runProvision(cli CLI, deps Dependencies, logger *zap.Logger) int {
	ctx, cancel := deps.Context()
	defer cancel()

	s, conn, closeStore, err := openStore(ctx, cli, deps, logger)
	defer closeStore()
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	def, err := loadDefinition(cli.Provision.Schema, conn, false)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}

	// JSON output keeps stdout machine-readable, so progress is dropped.
	var progress io.Writer = deps.Out
	if cli.Provision.Output == provisioner.FormatJSON {
		progress = io.Discard
	}
	p := provisioner.Provisioner{Store: s, Out: progress, Logger: logger}
	report := p.Provision(ctx, def)

	if cli.Provision.Output != provisioner.FormatJSON {
		fmt.Fprintln(deps.Out)
	}
	if err := provisioner.Render(deps.Out, report, cli.Provision.Output); err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	if !report.Success() {
		return 1
	}
	return 0
}
