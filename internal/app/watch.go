// Where: cli/internal/app/watch.go
// What: watch-auth command implementation.
// Why: Follow the signed-in user of a session until interrupted.
package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/services"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

type WatchAuthCmd struct {
	Interval time.Duration `short:"i" default:"30s" help:"Polling interval"`
	All      bool          `help:"Print every poll, not only changes"`
	Email    string        `help:"Sign in with this email before watching"`
	Password string        `env:"RBAAS_PASSWORD" help:"Password for --email"`
}

func runWatchAuth(cli CLI, deps Dependencies, logger *zap.Logger) int {
	ctx, cancel := deps.Context()
	defer cancel()

	s, conn, closeStore, err := openStore(ctx, cli, deps, logger)
	defer closeStore()
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	accounts, err := store.Accounts(s)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	target := services.DefaultTarget()
	if conn.Database != "" {
		target.DatabaseID = conn.Database
	}
	auth := &services.AuthService{Accounts: accounts, Target: target, Logger: logger}

	if cli.WatchAuth.Email != "" {
		if _, err := auth.Login(ctx, cli.WatchAuth.Email, cli.WatchAuth.Password); err != nil {
			return exitWithError(deps.ErrOut, err)
		}
	}

	watcher := services.Watcher{
		Source:   auth,
		Interval: cli.WatchAuth.Interval,
		EmitAll:  cli.WatchAuth.All,
		OnError: func(err error) {
			logger.Warn("current user lookup failed", zap.Error(err))
		},
	}
	fmt.Fprintf(deps.Out, "Watching %s session every %s (Ctrl+C to stop)\n", conn.Backend, watcher.Interval)
	err = watcher.Run(ctx, func(user *store.Account) {
		stamp := time.Now().Format(time.TimeOnly)
		if user == nil {
			fmt.Fprintf(deps.Out, "%s signed out\n", stamp)
			return
		}
		fmt.Fprintf(deps.Out, "%s signed in as %s <%s> (%s)\n", stamp, user.Name, user.Email, user.ID)
	})
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	return 0
}
