// Package cli is the only package in the repository allowed to print: it
// parses arguments into command invocations (cobra, replacing the teacher's
// hand-rolled flag.FlagSet now that the surface is eight subcommands wide),
// wires internal/descr, internal/sync, internal/executor, internal/graph
// and internal/runlog together, and renders color-aware diagnostics via
// Painter.
package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"
)

// CLIResult is the semantic outcome of one invocation, returned alongside
// any error so main.go can set the process exit code without re-deriving
// it from the error.
type CLIResult struct {
	ExitCode int
}

// globalFlags are the options shared across subcommands (spec §6: "Common
// options across relevant subcommands").
type globalFlags struct {
	file    string
	dryrun  bool
	threads int
	color   string
	verbose bool
}

var subcommandNames = []string{"build", "graph", "status", "clean", "init", "convert", "gc", "version", "help"}

// Run is the high-level entrypoint: parses args (excluding argv[0]) and
// executes the resolved subcommand.
func Run(ctx context.Context, args []string) (CLIResult, error) {
	if err := checkKnownSubcommand(args); err != nil {
		return CLIResult{ExitCode: ExitCodeOf(err)}, err
	}

	flags := &globalFlags{}
	root := newRootCmd(flags)
	root.SetArgs(args)

	var execErr error
	root.RunE = nil // root itself has no action; a subcommand is required
	if err := root.ExecuteContext(ctx); err != nil {
		execErr = err
	}
	if execErr != nil {
		return CLIResult{ExitCode: ExitCodeOf(execErr)}, execErr
	}
	return CLIResult{ExitCode: ExitSuccess}, nil
}

// checkKnownSubcommand turns an unrecognized subcommand into an actionable
// InvocationError with "did you mean" suggestions computed via
// agnivade/levenshtein, rather than cobra's bare built-in usage dump
// (spec §7 InvalidCommand: "a user typed an unknown subcommand").
func checkKnownSubcommand(args []string) error {
	if len(args) == 0 {
		return nil
	}
	first := args[0]
	if len(first) > 0 && first[0] == '-' {
		return nil // a bare global flag; let cobra's own parsing handle it
	}
	for _, name := range subcommandNames {
		if first == name {
			return nil
		}
	}

	type scored struct {
		name string
		dist int
	}
	var candidates []scored
	for _, name := range subcommandNames {
		candidates = append(candidates, scored{name: name, dist: levenshtein.ComputeDistance(first, name)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})

	best := candidates[0]
	if best.dist <= 2 {
		return &InvocationError{
			ExitCode: ExitInvalidCommand,
			Message:  fmt.Sprintf("unknown command %q — did you mean %q?", first, best.name),
		}
	}
	return &InvocationError{
		ExitCode: ExitInvalidCommand,
		Message:  fmt.Sprintf("unknown command %q", first),
	}
}

func newRootCmd(flags *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "bbuild",
		Short:         "An incremental, dependency-aware build engine.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.file, "file", "f", "./BUILD", "build description path")
	root.PersistentFlags().BoolVarP(&flags.dryrun, "dryrun", "n", false, "build only: sync and check for cycles without running tasks; the tasks that would run are not listed")
	root.PersistentFlags().IntVarP(&flags.threads, "threads", "j", 1, "max concurrent task executions")
	root.PersistentFlags().StringVar(&flags.color, "color", "auto", "color output: auto|never|always")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "accepted; no subcommand reads it")

	root.AddCommand(
		newBuildCmd(flags),
		newGraphCmd(flags),
		newStatusCmd(flags),
		newCleanCmd(flags),
		newInitCmd(flags),
		newConvertCmd(flags),
		newGCCmd(flags),
		newVersionCmd(flags),
	)
	return root
}

// ExitCodeOf extracts the semantic exit code carried by err, defaulting to
// ExitInternalError for anything not already classified.
func ExitCodeOf(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if invErr, ok := err.(*InvocationError); ok {
		return invErr.ExitCode
	}
	return classifyErr(err)
}
