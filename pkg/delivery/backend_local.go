package delivery

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// LocalBackend reads payloads straight off the local filesystem.
type LocalBackend struct{}

func (b *LocalBackend) Open(_ context.Context, path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "open %s: %s", path, err)
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(ErrBackendUnavailable, "seek %s to %d: %s", path, offset, err)
		}
	}

	return f, nil
}
