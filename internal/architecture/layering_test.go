// Where: cli/internal/architecture/layering_test.go
// What: Layer dependency guard tests for CLI internal packages.
// Why: Keep schema, store backends, domain logic and the CLI layer from leaking into each other.
package architecture

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

const internalImportPrefix = "github.com/poruru/restaurant-baas/cli/internal/"

func TestLayeringRules(t *testing.T) {
	t.Parallel()

	internalRoot := resolveInternalRoot(t)
	fset := token.NewFileSet()
	violations := []string{}

	err := filepath.WalkDir(internalRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".go") || strings.HasSuffix(d.Name(), "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(internalRoot, path)
		if err != nil {
			return err
		}
		sourceLayer := filepath.ToSlash(filepath.Dir(rel))
		if sourceLayer == "." {
			return nil
		}

		file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}

		for _, imp := range file.Imports {
			importPath := strings.Trim(imp.Path.Value, "\"")
			importLayer := packageFromImport(importPath)
			if importLayer == "" {
				continue
			}
			if violatesRule(sourceLayer, importLayer) {
				violations = append(violations, rel+" -> "+importPath)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scan internal packages: %v", err)
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("layering rule violations:\n%s", strings.Join(violations, "\n"))
	}
}

func resolveInternalRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	root := filepath.Clean(filepath.Join(wd, "..", ".."))
	return filepath.Join(root, "internal")
}

func packageFromImport(importPath string) string {
	if !strings.HasPrefix(importPath, internalImportPrefix) {
		return ""
	}
	return strings.TrimPrefix(importPath, internalImportPrefix)
}

// Leaf packages carry no domain knowledge.
var leafPackages = map[string]bool{
	"constants": true, "envutil": true, "interaction": true, "logging": true,
	"meta": true, "ui": true, "version": true,
}

// Domain packages work against the store contracts only.
var domainPackages = map[string]bool{
	"provisioner": true, "seed": true, "services": true,
}

func isBackend(pkg string) bool {
	return strings.HasPrefix(pkg, "store/")
}

func violatesRule(sourceLayer, importLayer string) bool {
	switch {
	case importLayer == "app":
		return true
	case leafPackages[sourceLayer]:
		return !leafPackages[importLayer]
	case sourceLayer == "schema":
		return true
	case sourceLayer == "store" || isBackend(sourceLayer):
		return domainPackages[importLayer] || importLayer == "config" || (isBackend(importLayer) && importLayer != sourceLayer)
	case domainPackages[sourceLayer]:
		return isBackend(importLayer) || importLayer == "config" || (domainPackages[importLayer] && importLayer != sourceLayer)
	case sourceLayer == "config":
		return !leafPackages[importLayer]
	default:
		return false
	}
}

func TestViolatesRule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		source, imported string
		want             bool
	}{
		{"provisioner", "store", false},
		{"provisioner", "store/memory", true},
		{"services", "seed", true},
		{"store/awsstore", "store", false},
		{"store/awsstore", "store/sqlite", true},
		{"store/sqlite", "provisioner", true},
		{"schema", "store", true},
		{"ui", "logging", false},
		{"logging", "store", true},
		{"config", "envutil", false},
		{"app", "store/memory", false},
		{"services", "app", true},
	}
	for _, tc := range cases {
		if got := violatesRule(tc.source, tc.imported); got != tc.want {
			t.Fatalf("violatesRule(%q, %q) = %v, want %v", tc.source, tc.imported, got, tc.want)
		}
	}
}
