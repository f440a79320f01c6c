package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/executor"
	"github.com/brilliant-build/bbuild/internal/graph"
	"github.com/brilliant-build/bbuild/internal/runlog"
	"github.com/brilliant-build/bbuild/internal/runner/local"
)

func newBuildCmd(flags *globalFlags) *cobra.Command {
	var autopilot bool
	var watchdir string
	var delayMs int

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Sync the description and execute every stale task.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if autopilot {
				return runAutopilot(cmd.Context(), flags, watchdir, delayMs)
			}
			_, err := runBuildOnce(cmd.Context(), flags)
			return err
		},
	}
	cmd.Flags().BoolVar(&autopilot, "autopilot", false, "watch the description and rebuild on change (spec's named, explicitly out-of-scope polling loop)")
	cmd.Flags().StringVar(&watchdir, "watchdir", "", "directory to poll for mtime changes under --autopilot")
	cmd.Flags().IntVar(&delayMs, "delay", 500, "poll interval in milliseconds under --autopilot")
	return cmd
}

// runBuildOnce syncs the description, detects cycles before walking (spec
// §7: "cycle detection is performed before execution begins"), runs the
// Executor unless --dryrun, and persists a runlog.Run record.
func runBuildOnce(ctx context.Context, flags *globalFlags) (executor.Report, error) {
	painter := NewPainter(ColorMode(flags.color), os.Stdout)

	s, err := openSyncedStore(flags)
	if err != nil {
		return executor.Report{}, err
	}
	defer s.Close()

	g, err := graph.Build(s)
	if err != nil {
		return executor.Report{}, berrors.WrapIO(err, "build graph snapshot")
	}

	if cycles := g.Cycles(); len(cycles) > 0 {
		labels := make([][]string, len(cycles))
		for i, scc := range cycles {
			for _, ref := range scc {
				labels[i] = append(labels[i], ref.String())
			}
		}
		return executor.Report{}, &berrors.CycleError{Cycles: labels}
	}

	if flags.dryrun {
		fmt.Fprintln(os.Stdout, painter.Dimf("dryrun: graph is acyclic, no tasks executed"))
		return executor.Report{}, nil
	}

	reg := prometheus.NewRegistry()
	metrics, err := executor.NewMetrics(reg)
	if err != nil {
		return executor.Report{}, berrors.WrapIO(err, "register metrics")
	}

	exec := executor.New(executor.Options{
		Store:   s,
		Runner:  local.New(),
		Pool:    flags.threads,
		Tracer:  otel.Tracer("bbuild"),
		Metrics: metrics,
	})

	start := time.Now()
	rep, runErr := exec.Run(ctx, g)

	if err := saveRunlog(flags, rep, start, runErr); err != nil {
		fmt.Fprintln(os.Stderr, painter.Failuref("warning: failed to persist run record: %v", err))
	}

	for _, f := range rep.Failures {
		fmt.Fprintln(os.Stderr, painter.Failuref("task %q exited %d: %s", f.Display, f.ExitCode, f.Stderr))
	}
	if runErr == nil {
		fmt.Fprintln(os.Stdout, painter.Successf("build ok: %d executed, %d skipped", len(rep.Executed), len(rep.Skipped)))
	}

	return rep, runErr
}

func saveRunlog(flags *globalFlags, rep executor.Report, start time.Time, runErr error) error {
	store, err := runlog.NewStore(filepath.Dir(flags.file))
	if err != nil {
		return err
	}
	status := runlog.StatusSucceeded
	switch {
	case len(rep.Failures) > 0:
		status = runlog.StatusFailed
	case runErr != nil:
		status = runlog.StatusAborted
	}
	failures := make([]runlog.TaskFailure, len(rep.Failures))
	for i, f := range rep.Failures {
		failures[i] = runlog.TaskFailure{Display: f.Display, ExitCode: f.ExitCode, Stderr: f.Stderr}
	}
	return store.Save(runlog.Run{
		RunID:     rep.RunID,
		GraphHash: rep.GraphHash,
		StartTime: start,
		EndTime:   time.Now(),
		Status:    status,
		Executed:  len(rep.Executed),
		Skipped:   len(rep.Skipped),
		Failures:  failures,
	})
}
