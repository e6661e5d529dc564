// Where: cli/internal/meta/meta.go
// What: CLI-local metadata constants.
// Why: Keep branding and directory layout in one place.
package meta

const (
	// Project Identity
	AppName   = "rbaas"
	Slug      = "rbaas"
	EnvPrefix = "RBAAS"

	// Directory Layout
	HomeDir    = ".rbaas"
	ConfigFile = "config.yaml"

	// Local emulator defaults
	DefaultSQLiteFile = "rbaas.db"
)
