// Where: cli/internal/app/connection_test.go
// What: Tests for connection resolution and profile commands.
// Why: Flags, env and profiles must layer predictably.
package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/config"
	"github.com/poruru/restaurant-baas/cli/internal/store/memory"
	"github.com/poruru/restaurant-baas/cli/internal/store/sqlite"
)

func writeProfiles(t *testing.T, env *testEnv, cfg config.GlobalConfig) {
	t.Helper()
	if err := config.SaveGlobalConfig(env.cfgPath, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
}

func TestResolveConnectionPrecedence(t *testing.T) {
	env := newTestEnv(t)
	writeProfiles(t, env, config.GlobalConfig{
		Version:       1,
		ActiveProfile: "cloud",
		Profiles: map[string]config.Profile{
			"cloud": {Backend: "appwrite", Endpoint: "https://profile.example/v1", Project: "p-profile", Database: "db-profile"},
			"local": {Backend: "sqlite", SQLitePath: "/tmp/local.db"},
		},
	})
	t.Setenv("VITE_APPWRITE_PROJECT_ID", "p-env")

	name, conn, err := resolveConnection(CLI{Database: "db-flag"}, env.deps)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "cloud" {
		t.Fatalf("expected active profile, got %q", name)
	}
	if conn.Backend != "appwrite" || conn.Endpoint != "https://profile.example/v1" {
		t.Fatalf("profile values lost: %+v", conn)
	}
	if conn.Project != "p-env" {
		t.Fatalf("env must win over the profile, got %q", conn.Project)
	}
	if conn.Database != "db-flag" {
		t.Fatalf("flag must win over everything, got %q", conn.Database)
	}

	_, local, err := resolveConnection(CLI{Profile: "local"}, env.deps)
	if err != nil || local.SQLitePath != "/tmp/local.db" {
		t.Fatalf("unexpected local profile: %+v %v", local, err)
	}
	if _, _, err := resolveConnection(CLI{Profile: "missing"}, env.deps); err == nil {
		t.Fatalf("expected missing profile error")
	}
}

func TestResolveConnectionDefaults(t *testing.T) {
	env := newTestEnv(t)

	_, conn, err := resolveConnection(CLI{}, env.deps)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if conn.Backend != BackendSQLite || !strings.HasSuffix(conn.SQLitePath, filepath.Join(".rbaas", "rbaas.db")) {
		t.Fatalf("expected sqlite default under the home dir, got %+v", conn)
	}

	t.Setenv("VITE_APPWRITE_ENDPOINT", "http://localhost/v1")
	_, conn, err = resolveConnection(CLI{}, env.deps)
	if err != nil || conn.Backend != BackendAppwrite {
		t.Fatalf("an endpoint selects the BaaS backend, got %+v %v", conn, err)
	}

	if _, _, err := resolveConnection(CLI{Backend: "postgres"}, env.deps); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
	_, conn, err = resolveConnection(CLI{Backend: "MEMORY"}, env.deps)
	if err != nil || conn.Backend != BackendMemory {
		t.Fatalf("backend names are case-insensitive, got %+v %v", conn, err)
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	s, err := OpenBackend(ctx, config.Profile{Backend: BackendMemory}, logger)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}

	path := filepath.Join(t.TempDir(), "nested", "rbaas.db")
	s, err = OpenBackend(ctx, config.Profile{Backend: BackendSQLite, SQLitePath: path}, logger)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	lite, ok := s.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", s)
	}
	defer lite.Close()
	if lite.Path() != path {
		t.Fatalf("unexpected sqlite path %q", lite.Path())
	}

	if _, err := OpenBackend(ctx, config.Profile{Backend: BackendAppwrite}, logger); err == nil {
		t.Fatalf("expected missing endpoint error")
	}
	if _, err := OpenBackend(ctx, config.Profile{Backend: "ftp"}, logger); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestConfigSetUseShow(t *testing.T) {
	env := newTestEnv(t)

	if code := env.run("--profile", "cloud", "config", "set", "backend", "Appwrite"); code != 0 {
		t.Fatalf("config set failed: %s", env.errOut.String())
	}
	if code := env.run("--profile", "cloud", "config", "set", "api_key", "secret-key-value"); code != 0 {
		t.Fatalf("config set failed: %s", env.errOut.String())
	}
	if code := env.run("--profile", "local", "config", "set", "backend", "sqlite"); code != 0 {
		t.Fatalf("config set failed: %s", env.errOut.String())
	}
	if code := env.run("config", "set", "backend", "ftp"); code != 1 {
		t.Fatalf("expected unsupported backend to be rejected, got %d", code)
	}
	if code := env.run("config", "set", "colour", "blue"); code != 1 {
		t.Fatalf("expected unknown key to be rejected, got %d", code)
	}

	cfg, err := config.LoadGlobalConfig(env.cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ActiveProfile != "cloud" || cfg.Profiles["cloud"].Backend != "appwrite" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	if code := env.run("config", "use", "local"); code != 0 {
		t.Fatalf("config use failed: %s", env.errOut.String())
	}
	if code := env.run("config", "use", "nowhere"); code != 1 {
		t.Fatalf("expected unknown profile to fail, got %d", code)
	}

	if code := env.run("--profile", "cloud", "config", "show"); code != 0 {
		t.Fatalf("config show failed: %s", env.errOut.String())
	}
	out := env.out.String()
	if !strings.Contains(out, "* local") || !strings.Contains(out, "secr********") {
		t.Fatalf("unexpected show output %q", out)
	}
	if strings.Contains(out, "secret-key-value") {
		t.Fatalf("api key must be masked: %q", out)
	}

	if code := env.run("config", "path"); code != 0 || strings.TrimSpace(env.out.String()) != env.cfgPath {
		t.Fatalf("unexpected config path output %q", env.out.String())
	}
}

func TestStatsPeriod(t *testing.T) {
	from, to, err := statsPeriod("", "", mustTime(t, "2026-03-04T15:00:00Z"))
	if err != nil {
		t.Fatalf("period: %v", err)
	}
	if from.Format("2006-01-02") != "2026-03-04" || to.Format("2006-01-02") != "2026-03-05" {
		t.Fatalf("unexpected default period %s..%s", from, to)
	}
	if _, _, err := statsPeriod("03/04/2026", "", mustTime(t, "2026-03-04T15:00:00Z")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %s: %v", value, err)
	}
	return parsed
}
