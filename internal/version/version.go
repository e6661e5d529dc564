// Where: cli/internal/version/version.go
// What: Version information retrieval.
// Why: Report the module version or VCS revision the binary was built from.
package version

import (
	"fmt"
	"runtime/debug"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// GetVersion returns a tagged module version when the binary was installed with
// `go install module@version`, otherwise the short VCS revision ("-dirty" when the
// tree was modified), otherwise "dev".
func GetVersion() string {
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return "dev"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
			if len(revision) > 7 {
				revision = revision[:7]
			}
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if revision == "" {
		return "dev"
	}
	if modified {
		return fmt.Sprintf("%s-dirty", revision)
	}
	return revision
}
