// Where: cli/internal/app/seed.go
// What: Seed command implementation.
// Why: Load sample menu data after confirming the non-idempotent insert.
package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/interaction"
	"github.com/poruru/restaurant-baas/cli/internal/seed"
	"github.com/poruru/restaurant-baas/cli/internal/services"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

type SeedCmd struct {
	Yes bool `short:"y" help:"Skip confirmation prompt"`
}

func runSeed(cli CLI, deps Dependencies, logger *zap.Logger) int {
	if !cli.Seed.Yes {
		confirmed, err := confirmSeed(deps)
		if err != nil {
			return exitWithError(deps.ErrOut, err)
		}
		if !confirmed {
			fmt.Fprintln(deps.Out, "Aborted.")
			return 0
		}
	}

	ctx, cancel := deps.Context()
	defer cancel()
	s, conn, closeStore, err := openStore(ctx, cli, deps, logger)
	defer closeStore()
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	docs, err := store.Documents(s)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}

	target := services.DefaultTarget()
	if conn.Database != "" {
		target.DatabaseID = conn.Database
	}
	seeder := seed.Seeder{
		Docs:       docs,
		DatabaseID: target.DatabaseID,
		Categories: target.Collections.Categories,
		MenuItems:  target.Collections.MenuItems,
		Out:        deps.Out,
		Logger:     logger,
	}
	result, err := seeder.Seed(ctx)
	if err != nil {
		if store.IsConflict(err) {
			return exitWithSuggestion(deps.ErrOut, err.Error(), []string{
				"the sample rows already exist; category names are unique",
			})
		}
		return exitWithError(deps.ErrOut, err)
	}
	fmt.Fprintf(deps.Out, "Seeded %d categories and %d menu items.\n", len(result.Categories), len(result.MenuItems))
	return 0
}

func confirmSeed(deps Dependencies) (bool, error) {
	const (
		title       = "Insert sample data?"
		description = "Seeding is not idempotent: every run inserts the sample categories and menu items again."
	)
	if !deps.Interactive() {
		return false, errors.New("seed requires confirmation; pass --yes when not running in a terminal")
	}
	confirmed, err := deps.Prompter.Confirm(title, description)
	if err == nil {
		return confirmed, nil
	}
	if errors.Is(err, interaction.ErrNotInteractive) {
		return interaction.PromptYesNo(deps.In, deps.Out, title)
	}
	return false, err
}
