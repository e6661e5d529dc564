// Where: cli/internal/app/check.go
// What: Connectivity checks against the selected backend.
// Why: Confirm auth, database and menu reads work before pointing a front-end at the target.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/poruru/restaurant-baas/cli/internal/services"
	"github.com/poruru/restaurant-baas/cli/internal/store"
	"github.com/poruru/restaurant-baas/cli/internal/ui"
)

const (
	checkAuth       = "auth"
	checkDatabase   = "database"
	checkMenu       = "menu"
	checkCategories = "categories"
)

var allChecks = []string{checkAuth, checkDatabase, checkMenu, checkCategories}

type CheckCmd struct {
	Names    []string      `arg:"" optional:"" help:"Checks to run: auth, database, menu, categories (default: all)"`
	Timeout  time.Duration `default:"30s" help:"Deadline for all checks"`
	Parallel int           `default:"4" help:"Checks to run at once"`
	FailFast bool          `name:"fail-fast" help:"Stop starting checks after the first failure"`
}

type checkResult struct {
	Name    string
	Detail  string
	Err     error
	Skipped bool
}

// checkFunc runs one check and returns a one-line detail on success.
type checkFunc func(ctx context.Context) (string, error)

func runCheck(cli CLI, deps Dependencies, logger *zap.Logger) int {
	names, err := selectChecks(cli.Check.Names)
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}

	parent, cancel := deps.Context()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(parent, cli.Check.Timeout)
	defer cancelTimeout()

	s, conn, closeStore, err := openStore(ctx, cli, deps, logger)
	defer closeStore()
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	target := services.DefaultTarget()
	if conn.Database != "" {
		target.DatabaseID = conn.Database
	}

	checks := buildChecks(s, target)
	results := runChecks(ctx, names, checks, cli.Check.Parallel, cli.Check.FailFast, logger)

	console := ui.New(deps.Out)
	console.Header("🔌", fmt.Sprintf("Checking %s backend...", conn.Backend))
	failed, skipped := 0, 0
	for _, res := range results {
		switch {
		case res.Skipped:
			skipped++
			console.Warn(fmt.Sprintf("%s: skipped (%v)", res.Name, res.Err))
		case res.Err != nil:
			failed++
			console.Fail(fmt.Sprintf("%s: %v", res.Name, res.Err))
		default:
			console.Success(fmt.Sprintf("%s: %s", res.Name, res.Detail))
		}
	}
	if failed > 0 || skipped > 0 {
		summary := fmt.Sprintf("%d of %d checks failed", failed, len(results))
		if skipped > 0 {
			summary += fmt.Sprintf(", %d skipped", skipped)
		}
		fmt.Fprintf(deps.Out, "\n%s\n", summary)
		return 1
	}
	return 0
}

// runChecks runs the named checks at most parallel at a time, keeping
// results in name order. Without failFast a failing check never cancels
// the others; with it, checks not yet started are skipped and running ones
// see a cancelled context.
func runChecks(ctx context.Context, names []string, checks map[string]checkFunc, parallel int, failFast bool, logger *zap.Logger) []checkResult {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(parallel, 1))
	results := make([]checkResult, len(names))
	for i, name := range names {
		run := checks[name]
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				results[i] = checkResult{Name: name, Err: err, Skipped: true}
				return nil
			}
			detail, err := run(groupCtx)
			results[i] = checkResult{Name: name, Detail: detail, Err: err}
			logger.Debug("check finished", zap.String("check", name), zap.Error(err))
			if err != nil && failFast {
				return fmt.Errorf("check %s: %w", name, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		logger.Debug("checks stopped early", zap.Error(err))
	}
	return results
}

func selectChecks(names []string) ([]string, error) {
	if len(names) == 0 {
		return allChecks, nil
	}
	seen := map[string]bool{}
	var out []string
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		valid := false
		for _, known := range allChecks {
			if known == name {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("unknown check %q (want one of %s)", raw, strings.Join(allChecks, ", "))
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

func buildChecks(s store.SchemaStore, target services.Target) map[string]checkFunc {
	docs, docsErr := store.Documents(s)
	menu := &services.MenuService{Docs: docs, Target: target}

	return map[string]checkFunc{
		checkAuth: func(ctx context.Context) (string, error) {
			accounts, err := store.Accounts(s)
			if err != nil {
				return "", err
			}
			auth := &services.AuthService{Accounts: accounts, Target: target}
			user, err := auth.CurrentUser(ctx)
			if err != nil {
				return "", err
			}
			if user == nil {
				return "reachable, not signed in", nil
			}
			return fmt.Sprintf("signed in as %s <%s>", user.Name, user.Email), nil
		},
		checkDatabase: func(ctx context.Context) (string, error) {
			if lister, ok := s.(store.DatabaseLister); ok {
				dbs, err := lister.ListDatabases(ctx)
				if err != nil {
					return "", fmt.Errorf("failed to list databases: %w", err)
				}
				for _, db := range dbs {
					if db.ID == target.DatabaseID {
						return fmt.Sprintf("%d databases, %s present", len(dbs), target.DatabaseID), nil
					}
				}
				return "", fmt.Errorf("database %s not found among %d databases", target.DatabaseID, len(dbs))
			}
			db, err := s.GetDatabase(ctx, target.DatabaseID)
			if err != nil {
				return "", fmt.Errorf("failed to fetch database: %w", err)
			}
			return fmt.Sprintf("database %s (%s)", db.ID, db.Name), nil
		},
		checkMenu: func(ctx context.Context) (string, error) {
			if docsErr != nil {
				return "", docsErr
			}
			list, err := menu.MenuItems(ctx, "")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d menu items available", list.Total), nil
		},
		checkCategories: func(ctx context.Context) (string, error) {
			if docsErr != nil {
				return "", docsErr
			}
			list, err := menu.Categories(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d active categories", list.Total), nil
		},
	}
}
