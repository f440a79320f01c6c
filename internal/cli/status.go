package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/runlog"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the outcome of the most recent build invocation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			painter := NewPainter(ColorMode(flags.color), os.Stdout)

			rl, err := runlog.NewStore(filepath.Dir(flags.file))
			if err != nil {
				return berrors.WrapIO(err, "open run log")
			}
			run, ok, err := rl.Latest()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(os.Stdout, painter.Dimf("no recorded runs for %s", flags.file))
				return nil
			}

			fmt.Fprintf(os.Stdout, "run:      %s\n", run.RunID)
			fmt.Fprintf(os.Stdout, "graph:    %s\n", run.GraphHash)
			fmt.Fprintf(os.Stdout, "status:   %s\n", statusLine(painter, run.Status))
			fmt.Fprintf(os.Stdout, "started:  %s\n", run.StartTime.Format("2006-01-02T15:04:05Z07:00"))
			fmt.Fprintf(os.Stdout, "finished: %s\n", run.EndTime.Format("2006-01-02T15:04:05Z07:00"))
			fmt.Fprintf(os.Stdout, "executed: %d, skipped: %d, failed: %d\n", run.Executed, run.Skipped, len(run.Failures))
			for _, f := range run.Failures {
				fmt.Fprintln(os.Stdout, painter.Failuref("  %s exited %d: %s", f.Display, f.ExitCode, f.Stderr))
			}
			if run.Status != runlog.StatusSucceeded {
				return berrors.BuildDescriptionf("most recent run did not succeed")
			}
			return nil
		},
	}
}

func statusLine(p *Painter, s runlog.Status) string {
	if s == runlog.StatusSucceeded {
		return p.Successf(string(s))
	}
	return p.Failuref(string(s))
}
