// Where: cli/internal/app/menu.go
// What: Menu and order browsing commands.
// Why: Exercise the menu and order services against a seeded backend.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/services"
	"github.com/poruru/restaurant-baas/cli/internal/store"
	"github.com/poruru/restaurant-baas/cli/internal/ui"
)

// MenuCmd groups menu subcommands.
type MenuCmd struct {
	Categories MenuCategoriesCmd `cmd:"" help:"List active categories"`
	Items      MenuItemsCmd      `cmd:"" help:"List available menu items"`
	Search     MenuSearchCmd     `cmd:"" help:"Search menu items by name"`
}

type MenuCategoriesCmd struct {
	JSON bool `help:"Print JSON"`
}

type MenuItemsCmd struct {
	Category string `short:"c" help:"Only items of this category id"`
	JSON     bool   `help:"Print JSON"`
}

type MenuSearchCmd struct {
	Term string `arg:"" help:"Search term"`
	JSON bool   `help:"Print JSON"`
}

// OrdersCmd groups order subcommands.
type OrdersCmd struct {
	List  OrdersListCmd  `cmd:"" help:"List orders, newest first"`
	Stats OrdersStatsCmd `cmd:"" help:"Aggregate orders over a period"`
}

type OrdersListCmd struct {
	Status string `help:"Only orders with this status"`
	Limit  int    `default:"25" help:"Maximum orders to list"`
	Offset int    `help:"Orders to skip"`
	JSON   bool   `help:"Print JSON"`
}

type OrdersStatsCmd struct {
	From string `help:"Start date (YYYY-MM-DD, default: today)"`
	To   string `help:"End date, exclusive (YYYY-MM-DD, default: the day after --from)"`
	JSON bool   `help:"Print JSON"`
}

// withDocuments opens the backend and hands its document store to fn.
func withDocuments(cli CLI, deps Dependencies, logger *zap.Logger, fn func(ctx context.Context, docs store.DocumentStore, files store.FileStore, target services.Target) error) int {
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
	files, _ := store.Files(s)
	target := services.DefaultTarget()
	if conn.Database != "" {
		target.DatabaseID = conn.Database
	}
	if err := fn(ctx, docs, files, target); err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	return 0
}

func runMenuCategories(cli CLI, deps Dependencies, logger *zap.Logger) int {
	return withDocuments(cli, deps, logger, func(ctx context.Context, docs store.DocumentStore, _ store.FileStore, target services.Target) error {
		menu := &services.MenuService{Docs: docs, Target: target}
		list, err := menu.Categories(ctx)
		if err != nil {
			return err
		}
		categories, err := services.DecodeAll[services.Category](list.Documents)
		if err != nil {
			return err
		}
		if cli.Menu.Categories.JSON {
			return writeJSON(deps.Out, categories)
		}
		console := ui.New(deps.Out)
		console.Header("📂", fmt.Sprintf("%d categories", len(categories)))
		for _, c := range categories {
			console.Item(c.Name, c.ID)
		}
		return nil
	})
}

func runMenuItems(cli CLI, deps Dependencies, logger *zap.Logger) int {
	return withDocuments(cli, deps, logger, func(ctx context.Context, docs store.DocumentStore, files store.FileStore, target services.Target) error {
		menu := &services.MenuService{Docs: docs, Files: files, Target: target}
		list, err := menu.MenuItems(ctx, cli.Menu.Items.Category)
		if err != nil {
			return err
		}
		return printMenuItems(deps.Out, list, cli.Menu.Items.JSON)
	})
}

func runMenuSearch(cli CLI, deps Dependencies, logger *zap.Logger) int {
	return withDocuments(cli, deps, logger, func(ctx context.Context, docs store.DocumentStore, files store.FileStore, target services.Target) error {
		menu := &services.MenuService{Docs: docs, Files: files, Target: target}
		list, err := menu.Search(ctx, cli.Menu.Search.Term)
		if err != nil {
			return err
		}
		return printMenuItems(deps.Out, list, cli.Menu.Search.JSON)
	})
}

func printMenuItems(out io.Writer, list store.DocumentList, asJSON bool) error {
	items, err := services.DecodeAll[services.MenuItem](list.Documents)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, items)
	}
	console := ui.New(out)
	console.Header("🍽️", fmt.Sprintf("%d menu items", len(items)))
	for _, item := range items {
		var tags []string
		if item.IsSpicy {
			tags = append(tags, "spicy")
		}
		if item.IsVegetarian {
			tags = append(tags, "vegetarian")
		}
		line := fmt.Sprintf("%-24s %7.2f", item.Name, item.Price)
		if len(tags) > 0 {
			line += "  (" + strings.Join(tags, ", ") + ")"
		}
		console.ItemPlain(line)
	}
	return nil
}

func runOrdersList(cli CLI, deps Dependencies, logger *zap.Logger) int {
	return withDocuments(cli, deps, logger, func(ctx context.Context, docs store.DocumentStore, _ store.FileStore, target services.Target) error {
		orders := &services.OrderService{Docs: docs, Target: target}
		opts := cli.Orders.List
		list, err := orders.Orders(ctx, opts.Status, opts.Limit, opts.Offset)
		if err != nil {
			return err
		}
		decoded, err := services.DecodeAll[services.Order](list.Documents)
		if err != nil {
			return err
		}
		if opts.JSON {
			return writeJSON(deps.Out, decoded)
		}
		console := ui.New(deps.Out)
		console.Header("🧾", fmt.Sprintf("%d of %d orders", len(decoded), list.Total))
		for _, o := range decoded {
			console.ItemPlain(fmt.Sprintf("%-16s %-10s %-9s %8.2f", o.OrderNumber, o.Status, o.OrderType, o.Total))
		}
		return nil
	})
}

func runOrdersStats(cli CLI, deps Dependencies, logger *zap.Logger) int {
	from, to, err := statsPeriod(cli.Orders.Stats.From, cli.Orders.Stats.To, time.Now())
	if err != nil {
		return exitWithError(deps.ErrOut, err)
	}
	return withDocuments(cli, deps, logger, func(ctx context.Context, docs store.DocumentStore, _ store.FileStore, target services.Target) error {
		orders := &services.OrderService{Docs: docs, Target: target}
		stats, err := orders.Stats(ctx, from, to)
		if err != nil {
			return err
		}
		if cli.Orders.Stats.JSON {
			return writeJSON(deps.Out, stats)
		}
		console := ui.New(deps.Out)
		console.Header("📊", fmt.Sprintf("Orders %s to %s", from.Format(time.DateOnly), to.Format(time.DateOnly)))
		console.Item("Orders", stats.TotalOrders)
		console.Item("Revenue", fmt.Sprintf("%.2f", stats.TotalRevenue))
		console.Item("Average", fmt.Sprintf("%.2f", stats.AverageOrderValue))
		for _, status := range sortedKeys(stats.ByStatus) {
			console.Item("Status "+status, stats.ByStatus[status])
		}
		for _, kind := range sortedKeys(stats.ByType) {
			console.Item("Type "+kind, stats.ByType[kind])
		}
		return nil
	})
}

// statsPeriod parses the --from/--to dates in UTC.
func statsPeriod(fromRaw, toRaw string, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if fromRaw != "" {
		parsed, err := time.Parse(time.DateOnly, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", fromRaw, err)
		}
		from = parsed
	}
	to := from.AddDate(0, 0, 1)
	if toRaw != "" {
		parsed, err := time.Parse(time.DateOnly, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", toRaw, err)
		}
		to = parsed
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
	}
	return from, to, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
