package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// runAutopilot is the simplest possible implementation of the explicitly
// out-of-scope "filesystem-watch autopilot loop" (spec §1 Non-goals): a
// single os.Stat/filepath.WalkDir mtime poll over watchdir (defaulting to
// the description's own directory) every delay, calling runBuildOnce on any
// change. No fsnotify-equivalent library appears anywhere in the retrieval
// pack to ground a richer, debounced watcher on.
func runAutopilot(ctx context.Context, flags *globalFlags, watchdir string, delayMs int) error {
	if watchdir == "" {
		watchdir = filepath.Dir(flags.file)
	}
	if delayMs <= 0 {
		delayMs = 500
	}
	painter := NewPainter(ColorMode(flags.color), os.Stdout)

	last, err := scanMtimes(watchdir)
	if err != nil {
		return err
	}
	if _, err := runBuildOnce(ctx, flags); err != nil {
		fmt.Fprintln(os.Stderr, painter.Failuref("autopilot: initial build failed: %v", err))
	}

	ticker := time.NewTicker(time.Duration(delayMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			next, err := scanMtimes(watchdir)
			if err != nil {
				return err
			}
			if !mtimesEqual(last, next) {
				fmt.Fprintln(os.Stdout, painter.Dimf("autopilot: change detected under %s, rebuilding", watchdir))
				if _, err := runBuildOnce(ctx, flags); err != nil {
					fmt.Fprintln(os.Stderr, painter.Failuref("autopilot: build failed: %v", err))
				}
			}
			last = next
		}
	}
}

func scanMtimes(root string) (map[string]int64, error) {
	out := map[string]int64{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = info.ModTime().UnixNano()
		return nil
	})
	return out, err
}

func mtimesEqual(a, b map[string]int64) bool {
	if len(a) != len(b) {
		return false
	}
	for path, t := range a {
		if b[path] != t {
			return false
		}
	}
	return true
}
