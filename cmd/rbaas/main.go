// Where: cli/cmd/rbaas/main.go
// What: CLI entrypoint.
// Why: Execute rbaas commands with the process streams and real backends.
package main

import (
	"os"

	"github.com/poruru/restaurant-baas/cli/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:], buildDependencies()))
}
