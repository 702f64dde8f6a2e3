package delivery

import (
	"context"
	"io"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/pkg/errors"
)

// Backend yields the bytes of a stored file starting at an offset. Each
// storage server kind has one implementation; the streaming engine treats
// them uniformly.
type Backend interface {
	// Open positions a readable handle at offset within the payload at
	// path. The caller owns the returned handle and must close it.
	Open(ctx context.Context, path string, offset int64) (io.ReadCloser, error)
}

// BackendFor picks the backend implementation for a resolved server.
func BackendFor(server *model.StorageServer) (Backend, error) {
	switch server.Kind {
	case model.ServerKindLocal, model.ServerKindDirect:
		return &LocalBackend{}, nil
	case model.ServerKindFTP:
		return NewFTPBackend(server), nil
	case model.ServerKindSFTP:
		return NewSFTPBackend(server), nil
	case model.ServerKindObject:
		return NewObjectBackend(server)
	default:
		return nil, errors.Wrapf(ErrBackendUnavailable, "unknown storage kind %q on server %d", server.Kind, server.ID)
	}
}
