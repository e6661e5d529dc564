// Where: cli/cmd/rbaas/cli.go
// What: Runtime dependency wiring.
// Why: Keep main small and let tests check the wiring.
package main

import (
	"os"

	"github.com/poruru/restaurant-baas/cli/internal/app"
	"github.com/poruru/restaurant-baas/cli/internal/config"
	"github.com/poruru/restaurant-baas/cli/internal/interaction"
)

// buildDependencies constructs the runtime dependencies required by the CLI.
func buildDependencies() app.Dependencies {
	return app.Dependencies{
		Out:         os.Stdout,
		ErrOut:      os.Stderr,
		In:          os.Stdin,
		Backends:    app.OpenBackend,
		Prompter:    interaction.HuhPrompter{},
		Interactive: func() bool { return interaction.IsTerminal(os.Stdin) && interaction.IsTerminal(os.Stdout) },
		ConfigPath:  config.GlobalConfigPath,
	}
}
