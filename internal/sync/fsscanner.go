package sync

import (
	"io"
	"os"

	"github.com/brilliant-build/bbuild/internal/model"
	"github.com/brilliant-build/bbuild/internal/store"
)

// FileScanner is the default Scanner: os.Stat classifies the resource,
// and for regular files its content is fingerprinted with
// store.Fingerprint.
type FileScanner struct{}

func (FileScanner) Scan(path string) (model.ResourceStatus, []byte, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return model.StatusMissing, nil, nil
	}
	if err != nil {
		return model.StatusUnknown, nil, err
	}
	if info.IsDir() {
		return model.StatusDirectory, nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return model.StatusUnknown, nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return model.StatusUnknown, nil, err
	}
	return model.StatusFile, store.Fingerprint(data), nil
}
