// Command lace evaluates source files against a project's governance
// declarations.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/lace/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own failures; anything else is a usage error.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "lace: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
