// Where: cli/internal/config/global.go
// What: Global config load/save helpers and connection profiles.
// Why: Manage ~/.rbaas/config.yaml consistently.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/poruru/restaurant-baas/cli/internal/constants"
	"github.com/poruru/restaurant-baas/cli/internal/envutil"
	"github.com/poruru/restaurant-baas/cli/internal/meta"
)

// DefaultProfile is used when neither flags, env nor the config name one.
const DefaultProfile = "default"

// GlobalConfig represents the ~/.rbaas/config.yaml global configuration.
// It stores named connection profiles and the active one.
type GlobalConfig struct {
	Version       int                `yaml:"version"`
	ActiveProfile string             `yaml:"active_profile,omitempty"`
	Profiles      map[string]Profile `yaml:"profiles,omitempty"`
}

// Profile selects a backend and how to reach it. Empty fields fall back to
// environment variables and then to backend defaults.
type Profile struct {
	Backend    string `yaml:"backend,omitempty"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	Project    string `yaml:"project,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Database   string `yaml:"database,omitempty"`
	SQLitePath string `yaml:"sqlite_path,omitempty"`

	Region         string `yaml:"region,omitempty"`
	DynamoEndpoint string `yaml:"dynamodb_endpoint,omitempty"`
	S3Endpoint     string `yaml:"s3_endpoint,omitempty"`
	TablePrefix    string `yaml:"table_prefix,omitempty"`
	BucketPrefix   string `yaml:"bucket_prefix,omitempty"`
	ComposeProject string `yaml:"compose_project,omitempty"`
}

// profileKeys lists the keys accepted by Set, in display order.
var profileKeys = []string{
	"backend", "endpoint", "project", "api_key", "database", "sqlite_path",
	"region", "dynamodb_endpoint", "s3_endpoint", "table_prefix", "bucket_prefix", "compose_project",
}

// ProfileKeys returns the keys accepted by Profile.Set.
func ProfileKeys() []string {
	return append([]string(nil), profileKeys...)
}

func (p *Profile) field(key string) (*string, bool) {
	switch key {
	case "backend":
		return &p.Backend, true
	case "endpoint":
		return &p.Endpoint, true
	case "project":
		return &p.Project, true
	case "api_key":
		return &p.APIKey, true
	case "database":
		return &p.Database, true
	case "sqlite_path":
		return &p.SQLitePath, true
	case "region":
		return &p.Region, true
	case "dynamodb_endpoint":
		return &p.DynamoEndpoint, true
	case "s3_endpoint":
		return &p.S3Endpoint, true
	case "table_prefix":
		return &p.TablePrefix, true
	case "bucket_prefix":
		return &p.BucketPrefix, true
	case "compose_project":
		return &p.ComposeProject, true
	}
	return nil, false
}

// Set assigns one key; an empty value clears it.
func (p *Profile) Set(key, value string) error {
	ptr, ok := p.field(strings.ToLower(strings.TrimSpace(key)))
	if !ok {
		return fmt.Errorf("unknown profile key %q (valid: %s)", key, strings.Join(profileKeys, ", "))
	}
	*ptr = strings.TrimSpace(value)
	return nil
}

// Get returns the value of one key.
func (p Profile) Get(key string) (string, bool) {
	ptr, ok := p.field(key)
	if !ok {
		return "", false
	}
	return *ptr, true
}

// Merge fills empty fields of p from other.
func (p Profile) Merge(other Profile) Profile {
	for _, key := range profileKeys {
		ptr, _ := p.field(key)
		if *ptr == "" {
			value, _ := other.Get(key)
			*ptr = value
		}
	}
	return p
}

// DefaultGlobalConfig returns an initialized GlobalConfig with version set.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		Version:  1,
		Profiles: map[string]Profile{},
	}
}

// ProfileNames returns the configured profile names, sorted.
func (c GlobalConfig) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveProfileName picks the explicit name, then RBAAS_PROFILE, then the
// active profile, then "default".
func (c GlobalConfig) ResolveProfileName(explicit string) string {
	return envutil.FirstNonEmpty(explicit, envutil.GetHostEnv(constants.HostSuffixProfile), c.ActiveProfile, DefaultProfile)
}

// GlobalConfigPath returns the path to the global config file.
// Respects brand-specific CONFIG_PATH and CONFIG_HOME environment variables.
func GlobalConfigPath() (string, error) {
	if override := envutil.GetHostEnv(constants.HostSuffixConfigPath); override != "" {
		path := override
		if !filepath.IsAbs(path) {
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
		}
		return path, nil
	}
	if override := envutil.GetHostEnv(constants.HostSuffixConfigHome); override != "" {
		return filepath.Join(override, meta.ConfigFile), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, meta.HomeDir, meta.ConfigFile), nil
}

// LoadOrDefault reads the config at path; a missing file yields the defaults.
func LoadOrDefault(path string) (GlobalConfig, error) {
	cfg, err := LoadGlobalConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultGlobalConfig(), nil
	}
	if err != nil {
		return GlobalConfig{}, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return cfg, nil
}

// LoadGlobalConfig reads and parses the global configuration file.
func LoadGlobalConfig(path string) (GlobalConfig, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return GlobalConfig{}, err
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return GlobalConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveGlobalConfig writes a GlobalConfig to the specified path. The file may
// hold API keys, so it is private to the user.
func SaveGlobalConfig(path string, cfg GlobalConfig) error {
	payload, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, payload, 0o600)
}
