// Where: cli/internal/app/app.go
// What: CLI entrypoint logic.
// Why: Provide a testable command dispatcher.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/config"
	"github.com/poruru/restaurant-baas/cli/internal/constants"
	"github.com/poruru/restaurant-baas/cli/internal/envutil"
	"github.com/poruru/restaurant-baas/cli/internal/interaction"
	"github.com/poruru/restaurant-baas/cli/internal/logging"
	"github.com/poruru/restaurant-baas/cli/internal/meta"
	"github.com/poruru/restaurant-baas/cli/internal/version"
)

// Dependencies holds all injected dependencies required for CLI command execution.
// Zero values fall back to the process streams, the real backends and the
// global config path.
type Dependencies struct {
	Out    io.Writer
	ErrOut io.Writer
	In     io.Reader

	// Backends opens the store selected by the resolved connection.
	Backends BackendFactory
	Prompter interaction.Prompter
	// Interactive reports whether prompts may be shown.
	Interactive func() bool
	// ConfigPath locates the global config file.
	ConfigPath func() (string, error)
	// Context returns the command context; the default is cancelled on interrupt.
	Context func() (context.Context, context.CancelFunc)
}

// CLI defines the command-line interface structure parsed by Kong.
// It contains global flags and all subcommand definitions.
type CLI struct {
	Profile  string `short:"p" help:"Connection profile from the global config"`
	Backend  string `short:"b" help:"Backend: memory, appwrite, sqlite or aws"`
	Endpoint string `help:"BaaS API endpoint, for example http://localhost/v1"`
	Project  string `help:"BaaS project id"`
	APIKey   string `name:"api-key" help:"BaaS API key"`
	Database string `short:"d" help:"Database id (default: the schema's database)"`
	EnvFile  string `name:"env-file" help:"Path to .env file"`
	LogLevel string `name:"log-level" help:"Diagnostic log level: debug, info, warn, error or off"`

	Provision ProvisionCmd `cmd:"" help:"Create the database, buckets, collections, attributes and indexes"`
	Seed      SeedCmd      `cmd:"" help:"Insert sample categories and menu items"`
	Schema    SchemaCmd    `cmd:"" help:"Inspect schema definitions"`
	Check     CheckCmd     `cmd:"" help:"Run connectivity checks against the backend"`
	WatchAuth WatchAuthCmd `cmd:"" name:"watch-auth" help:"Print the signed-in user whenever it changes"`
	Menu      MenuCmd      `cmd:"" help:"Browse the menu"`
	Orders    OrdersCmd    `cmd:"" help:"Inspect orders"`
	Config    ConfigCmd    `cmd:"" name:"config" help:"Manage connection profiles"`
	Version   VersionCmd   `cmd:"" help:"Show version information"`
}

type VersionCmd struct{}

// Run is the main entry point for CLI command execution.
// It parses the command-line arguments, identifies the requested command,
// and dispatches to the appropriate handler. Returns 0 on success, 1 on error.
func Run(args []string, deps Dependencies) int {
	deps = deps.withDefaults()
	out := deps.Out

	cli := CLI{}
	parser, err := kong.New(&cli,
		kong.Name(meta.AppName),
		kong.Description("Provision and exercise the restaurant backend."),
		kong.Writers(out, deps.ErrOut),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}

	if len(args) == 0 {
		args = []string{"--help"}
	}
	ctx, err := parser.Parse(args)
	// kong prints help and calls the no-op exit hook, then keeps parsing.
	if hasHelpFlag(args) {
		return 0
	}
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}

	loadEnvFile(cli.EnvFile, deps.ErrOut)

	logger, err := logging.New(envutil.FirstNonEmpty(cli.LogLevel, envutil.GetHostEnv(constants.HostSuffixLogLevel)), deps.ErrOut)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	defer func() { _ = logger.Sync() }()

	command := commandPath(ctx.Command())
	logger.Debug("dispatch", zap.String("command", command))
	if exitCode, handled := dispatchCommand(command, cli, deps, logger); handled {
		return exitCode
	}

	fmt.Fprintln(deps.ErrOut, "unknown command")
	return 1
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Out == nil {
		d.Out = os.Stdout
	}
	if d.ErrOut == nil {
		d.ErrOut = os.Stderr
	}
	if d.In == nil {
		d.In = os.Stdin
	}
	if d.Backends == nil {
		d.Backends = OpenBackend
	}
	if d.Prompter == nil {
		d.Prompter = interaction.HuhPrompter{}
	}
	if d.Interactive == nil {
		d.Interactive = func() bool { return interaction.IsTerminal(os.Stdin) }
	}
	if d.ConfigPath == nil {
		d.ConfigPath = config.GlobalConfigPath
	}
	if d.Context == nil {
		d.Context = func() (context.Context, context.CancelFunc) {
			return signal.NotifyContext(context.Background(), os.Interrupt)
		}
	}
	return d
}

// loadEnvFile loads the given file, or .env in the current directory when it exists.
// Variables already set in the process win.
func loadEnvFile(path string, errOut io.Writer) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(errOut, "Warning: failed to load env file %s: %v\n", path, err)
		}
		return
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(errOut, "Warning: failed to load .env: %v\n", err)
		}
	}
}

type commandHandler func(CLI, Dependencies, *zap.Logger) int

func dispatchCommand(command string, cli CLI, deps Dependencies, logger *zap.Logger) (int, bool) {
	handlers := map[string]commandHandler{
		"provision":       runProvision,
		"seed":            runSeed,
		"schema show":     runSchemaShow,
		"schema validate": runSchemaValidate,
		"check":           runCheck,
		"watch-auth":      runWatchAuth,
		"menu categories": runMenuCategories,
		"menu items":      runMenuItems,
		"menu search":     runMenuSearch,
		"orders list":     runOrdersList,
		"orders stats":    runOrdersStats,
		"config show":     runConfigShow,
		"config set":      runConfigSet,
		"config use":      runConfigUse,
		"config path":     runConfigPath,
		"version":         func(_ CLI, deps Dependencies, _ *zap.Logger) int { return runVersion(deps.Out) },
	}

	if handler, ok := handlers[command]; ok {
		return handler(cli, deps, logger), true
	}
	return 1, false
}

// runVersion prints the version information of the CLI.
func runVersion(out io.Writer) int {
	fmt.Fprintln(out, version.GetVersion())
	return 0
}

// commandPath drops the positional placeholders kong includes in
// Context.Command, so "config set <key> <value>" becomes "config set".
func commandPath(command string) string {
	fields := strings.Fields(command)
	path := fields[:0]
	for _, field := range fields {
		if strings.HasPrefix(field, "<") {
			continue
		}
		path = append(path, field)
	}
	return strings.Join(path, " ")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
