// Where: cli/internal/app/connection.go
// What: Connection resolution and backend construction.
// Why: Merge flags, environment and the active profile into one store handle.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/config"
	"github.com/poruru/restaurant-baas/cli/internal/constants"
	"github.com/poruru/restaurant-baas/cli/internal/envutil"
	"github.com/poruru/restaurant-baas/cli/internal/meta"
	"github.com/poruru/restaurant-baas/cli/internal/store"
	"github.com/poruru/restaurant-baas/cli/internal/store/appwrite"
	"github.com/poruru/restaurant-baas/cli/internal/store/awsstore"
	"github.com/poruru/restaurant-baas/cli/internal/store/memory"
	"github.com/poruru/restaurant-baas/cli/internal/store/sqlite"
)

const (
	BackendMemory   = "memory"
	BackendAppwrite = "appwrite"
	BackendSQLite   = "sqlite"
	BackendAWS      = "aws"
)

var backends = []string{BackendMemory, BackendAppwrite, BackendSQLite, BackendAWS}

// BackendFactory opens the store for a resolved connection. The caller
// closes it with store.Close.
type BackendFactory func(ctx context.Context, conn config.Profile, logger *zap.Logger) (store.SchemaStore, error)

// resolveConnection merges, highest first: flags, environment, the selected
// profile, backend defaults.
func resolveConnection(cli CLI, deps Dependencies) (string, config.Profile, error) {
	cfg, err := loadGlobalConfig(deps)
	if err != nil {
		return "", config.Profile{}, err
	}
	name := cfg.ResolveProfileName(cli.Profile)
	profile, ok := cfg.Profiles[name]
	if !ok && strings.TrimSpace(cli.Profile) != "" {
		return "", config.Profile{}, fmt.Errorf("profile %q not found (available: %s)", name, strings.Join(cfg.ProfileNames(), ", "))
	}

	flags := config.Profile{
		Backend:  cli.Backend,
		Endpoint: cli.Endpoint,
		Project:  cli.Project,
		APIKey:   cli.APIKey,
		Database: cli.Database,
	}
	conn := flags.Merge(envProfile()).Merge(profile)
	conn.Backend = strings.ToLower(strings.TrimSpace(conn.Backend))
	if conn.Backend == "" {
		conn.Backend = BackendSQLite
		if conn.Endpoint != "" {
			conn.Backend = BackendAppwrite
		}
	}
	if !isKnownBackend(conn.Backend) {
		return "", config.Profile{}, fmt.Errorf("unsupported backend %q (want one of %s)", conn.Backend, strings.Join(backends, ", "))
	}
	if conn.Backend == BackendSQLite && conn.SQLitePath == "" {
		path, err := defaultSQLitePath()
		if err != nil {
			return "", config.Profile{}, err
		}
		conn.SQLitePath = path
	}
	return name, conn, nil
}

// envProfile reads the variables the web front-end and the emulators use.
func envProfile() config.Profile {
	return config.Profile{
		Backend:        envutil.GetHostEnv(constants.HostSuffixBackend),
		Endpoint:       strings.TrimSpace(os.Getenv(constants.EnvEndpoint)),
		Project:        strings.TrimSpace(os.Getenv(constants.EnvProjectID)),
		APIKey:         strings.TrimSpace(os.Getenv(constants.EnvAPIKey)),
		Database:       strings.TrimSpace(os.Getenv(constants.EnvDatabaseID)),
		SQLitePath:     envutil.GetHostEnv(constants.HostSuffixSQLitePath),
		Region:         strings.TrimSpace(os.Getenv(constants.EnvAWSRegion)),
		DynamoEndpoint: strings.TrimSpace(os.Getenv(constants.EnvDynamoDBEndpoint)),
		S3Endpoint:     strings.TrimSpace(os.Getenv(constants.EnvS3Endpoint)),
		ComposeProject: strings.TrimSpace(os.Getenv(constants.EnvComposeProjectName)),
	}
}

func isKnownBackend(name string) bool {
	for _, b := range backends {
		if b == name {
			return true
		}
	}
	return false
}

func defaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, meta.HomeDir, meta.DefaultSQLiteFile), nil
}

// OpenBackend builds the real store for conn.Backend.
func OpenBackend(ctx context.Context, conn config.Profile, logger *zap.Logger) (store.SchemaStore, error) {
	switch conn.Backend {
	case BackendMemory:
		return memory.New(), nil
	case BackendAppwrite:
		return appwrite.New(appwrite.Options{
			Endpoint: conn.Endpoint,
			Project:  conn.Project,
			APIKey:   conn.APIKey,
			Logger:   logger,
		})
	case BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(conn.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		s, err := sqlite.Open(conn.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.Logger = logger
		return s, nil
	case BackendAWS:
		cfg := awsstore.Config{
			Region:         conn.Region,
			DynamoEndpoint: conn.DynamoEndpoint,
			S3Endpoint:     conn.S3Endpoint,
			AccessKey:      envutil.FirstNonEmpty(os.Getenv(constants.EnvDynamoDBAccessKey), os.Getenv(constants.EnvS3AccessKey)),
			SecretKey:      envutil.FirstNonEmpty(os.Getenv(constants.EnvDynamoDBSecretKey), os.Getenv(constants.EnvS3SecretKey)),
			TablePrefix:    conn.TablePrefix,
			BucketPrefix:   conn.BucketPrefix,
			ComposeProject: conn.ComposeProject,
			Logger:         logger,
		}
		var resolver awsstore.PortResolver
		if cfg.ComposeProject != "" {
			if client, err := awsstore.NewDockerClient(); err == nil {
				resolver = awsstore.DockerPortResolver{Client: client}
			} else {
				logger.Warn("docker port discovery unavailable", zap.Error(err))
			}
		}
		return awsstore.New(ctx, awsstore.ResolveEndpoints(ctx, cfg, resolver), nil)
	}
	return nil, fmt.Errorf("unsupported backend %q", conn.Backend)
}

// openStore resolves the connection and opens the backend. The returned
// close function is never nil.
func openStore(ctx context.Context, cli CLI, deps Dependencies, logger *zap.Logger) (store.SchemaStore, config.Profile, func(), error) {
	_, conn, err := resolveConnection(cli, deps)
	if err != nil {
		return nil, config.Profile{}, func() {}, err
	}
	logger.Debug("open backend",
		zap.String("backend", conn.Backend),
		zap.String("endpoint", conn.Endpoint),
		zap.String("sqlite", conn.SQLitePath),
	)
	s, err := deps.Backends(ctx, conn, logger)
	if err != nil {
		return nil, conn, func() {}, fmt.Errorf("open %s backend: %w", conn.Backend, err)
	}
	closeFn := func() {
		if err := store.Close(s); err != nil {
			logger.Warn("close backend", zap.Error(err))
		}
	}
	return s, conn, closeFn, nil
}

func loadGlobalConfig(deps Dependencies) (config.GlobalConfig, error) {
	path, err := deps.ConfigPath()
	if err != nil {
		return config.GlobalConfig{}, err
	}
	return config.LoadOrDefault(path)
}
