package cli

import (
	"path/filepath"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/descr"
	"github.com/brilliant-build/bbuild/internal/store"
	"github.com/brilliant-build/bbuild/internal/sync"
)

// statePath derives the per-build state file path from the description
// path: "<description>.state" by convention (spec §6).
func statePath(descriptionPath string) string {
	return descriptionPath + ".state"
}

// openSyncedStore reads and parses the description at flags.file, opens its
// state store, and runs the Syncer against the freshly parsed rules,
// returning the open store for the caller to finish with (graph.Build, the
// Executor, ...). The caller owns closing it.
func openSyncedStore(flags *globalFlags) (*store.Store, error) {
	raw, rules, err := descr.Load(flags.file)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(store.Options{Dir: statePath(flags.file), SyncWrites: true})
	if err != nil {
		return nil, berrors.WrapIO(err, "open state store")
	}

	if err := sync.Sync(s, raw, rules, sync.FileScanner{}); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func absDescriptionPath(flags *globalFlags) (string, error) {
	abs, err := filepath.Abs(flags.file)
	if err != nil {
		return "", berrors.WrapIO(err, "resolve description path %q", flags.file)
	}
	return abs, nil
}
