// Where: cli/internal/app/config_cmd.go
// What: Configuration management commands.
// Why: Manage connection profiles stored in the global config.
package app

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/config"
	"github.com/poruru/restaurant-baas/cli/internal/ui"
)

// ConfigCmd groups configuration subcommands.
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" help:"Show profiles and the resolved connection"`
	Set  ConfigSetCmd  `cmd:"" help:"Set a profile key"`
	Use  ConfigUseCmd  `cmd:"" help:"Make a profile active"`
	Path ConfigPathCmd `cmd:"" help:"Print the config file path"`
}

type ConfigShowCmd struct {
	Secrets bool `help:"Print API keys instead of masking them"`
}

type ConfigSetCmd struct {
	Key   string `arg:"" help:"Profile key (backend, endpoint, project, api_key, database, sqlite_path, region, ...)"`
	Value string `arg:"" optional:"" help:"Value; empty clears the key"`
}

type ConfigUseCmd struct {
	Name string `arg:"" help:"Profile name"`
}

type ConfigPathCmd struct{}

func runConfigShow(cli CLI, deps Dependencies, _ *zap.Logger) int {
	cfg, err := loadGlobalConfig(deps)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	name, conn, err := resolveConnection(cli, deps)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}

	console := ui.New(deps.Out)
	console.Header("⚙️", "Profiles")
	if len(cfg.Profiles) == 0 {
		console.ItemPlain("(none)")
	}
	for _, profileName := range cfg.ProfileNames() {
		marker := " "
		if profileName == cfg.ActiveProfile {
			marker = "*"
		}
		console.ItemPlain(fmt.Sprintf("%s %s (%s)", marker, profileName, cfg.Profiles[profileName].Backend))
	}

	console.BlockStart("🔗", fmt.Sprintf("Resolved connection (profile %s)", name))
	for _, key := range config.ProfileKeys() {
		value, _ := conn.Get(key)
		if value == "" {
			continue
		}
		if key == "api_key" && !cli.Config.Show.Secrets {
			value = maskSecret(value)
		}
		console.Item(key, value)
	}
	return 0
}

func runConfigSet(cli CLI, deps Dependencies, _ *zap.Logger) int {
	path, err := deps.ConfigPath()
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	name := cfg.ResolveProfileName(cli.Profile)
	profile := cfg.Profiles[name]
	if err := profile.Set(cli.Config.Set.Key, cli.Config.Set.Value); err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	key := strings.ToLower(strings.TrimSpace(cli.Config.Set.Key))
	if key == "backend" && profile.Backend != "" {
		profile.Backend = strings.ToLower(profile.Backend)
	}
	if key == "backend" && profile.Backend != "" && !isKnownBackend(profile.Backend) {
		return exitWithError(deps.ErrOut, fmt.Errorf("unsupported backend %q (want one of %s)", profile.Backend, strings.Join(backends, ", ")))
	}
	cfg.Profiles[name] = profile
	if cfg.ActiveProfile == "" {
		cfg.ActiveProfile = name
	}
	if err := config.SaveGlobalConfig(path, cfg); err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	fmt.Fprintf(deps.Out, "updated %s.%s\n", name, key)
	return 0
}

func runConfigUse(cli CLI, deps Dependencies, _ *zap.Logger) int {
	path, err := deps.ConfigPath()
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	name := strings.TrimSpace(cli.Config.Use.Name)
	if _, ok := cfg.Profiles[name]; !ok {
		return exitWithSuggestion(deps.ErrOut, fmt.Sprintf("Profile %q not found.", name), []string{
			"rbaas --profile " + name + " config set backend <backend>",
			"rbaas config show",
		})
	}
	cfg.ActiveProfile = name
	if err := config.SaveGlobalConfig(path, cfg); err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	fmt.Fprintf(deps.Out, "active profile: %s\n", name)
	return 0
}

func runConfigPath(_ CLI, deps Dependencies, _ *zap.Logger) int {
	path, err := deps.ConfigPath()
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	fmt.Fprintln(deps.Out, path)
	return 0
}

func maskSecret(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return value[:4] + strings.Repeat("*", 8)
}
