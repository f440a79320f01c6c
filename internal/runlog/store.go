package runlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brilliant-build/bbuild/internal/berrors"
)

// Store persists Run records under <baseDir>/.bbuild/runs/<run-id>.json,
// plus a "latest" pointer file so `status` with no arguments can find the
// most recent run without listing the directory.
type Store struct {
	baseDir string
}

// NewStore returns a Store rooted at baseDir (the directory holding the
// description file, by convention).
func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("runlog: baseDir is required")
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) runsDir() string       { return filepath.Join(s.baseDir, ".bbuild", "runs") }
func (s *Store) runPath(id string) string { return filepath.Join(s.runsDir(), id+".json") }
func (s *Store) latestPath() string    { return filepath.Join(s.runsDir(), "latest.json") }

// Save persists run, validating it first, and updates the latest pointer.
func (s *Store) Save(run Run) error {
	if err := run.Validate(); err != nil {
		return berrors.WrapIO(err, "invalid run record")
	}
	data, err := jsonStable(run)
	if err != nil {
		return berrors.WrapIO(err, "marshal run record")
	}
	if err := writeFileAtomic(s.runPath(run.RunID), data); err != nil {
		return berrors.WrapIO(err, "write run record")
	}
	if err := writeFileAtomic(s.latestPath(), data); err != nil {
		return berrors.WrapIO(err, "write latest run pointer")
	}
	return nil
}

// Latest returns the most recently saved run, or ok=false if none exists.
func (s *Store) Latest() (run Run, ok bool, err error) {
	if readErr := readJSON(s.latestPath(), &run); readErr != nil {
		if os.IsNotExist(readErr) {
			return Run{}, false, nil
		}
		return Run{}, false, berrors.WrapIO(readErr, "read latest run pointer")
	}
	return run, true, nil
}

// List returns every run id on disk, sorted lexicographically.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.runsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, berrors.WrapIO(err, "list runs")
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "latest.json" || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func jsonStable(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func readJSON(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeFileAtomic writes data to path via a temp file + fsync + rename, the
// teacher's durability pattern (internal/recovery/state/store.go).
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
