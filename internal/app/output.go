// Where: cli/internal/app/output.go
// What: Error and hint output helpers.
// Why: Keep failure messages and exit codes uniform across commands.
package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

func exitWithError(out io.Writer, err error) int {
	fmt.Fprintf(out, "✗ %v\n", err)
	if hint := errorHint(err); hint != "" {
		fmt.Fprintf(out, "  %s\n", hint)
	}
	return 1
}

func exitWithSuggestion(out io.Writer, message string, suggestions []string) int {
	fmt.Fprintf(out, "✗ %s\n", message)
	if len(suggestions) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Next steps:")
		for _, s := range suggestions {
			fmt.Fprintf(out, "  - %s\n", s)
		}
	}
	return 1
}

// errorHint suggests a fix for the store error kinds users can act on.
func errorHint(err error) string {
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		return ""
	}
	switch storeErr.Kind {
	case store.KindPermission:
		return "check the API key or credentials of the selected profile"
	case store.KindTransport:
		return "check that the backend endpoint is reachable"
	case store.KindUnsupported:
		return "the selected backend does not offer this capability"
	}
	return ""
}
