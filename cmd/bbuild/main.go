package main

import (
	"context"
	"fmt"
	"os"

	"github.com/brilliant-build/bbuild/internal/cli"
)

// main is a deterministic boundary: it hands argv straight to cli.Run and
// translates the returned CLIResult into a process exit code.
func main() {
	result, err := cli.Run(context.Background(), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(result.ExitCode)
}
