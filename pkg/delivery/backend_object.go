package delivery

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// ObjectBackend reads payloads from an S3-compatible object store through
// a generic seekable read stream.
type ObjectBackend struct {
	client *minio.Client
	bucket string
}

func NewObjectBackend(server *model.StorageServer) (*ObjectBackend, error) {
	endpoint := server.Host
	if server.Port != 0 {
		endpoint = fmt.Sprintf("%s:%d", server.Host, server.Port)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(server.Username, server.Password, ""),
		Secure: server.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "object client for %s: %s", endpoint, err)
	}

	return &ObjectBackend{client: client, bucket: server.Bucket}, nil
}

func (b *ObjectBackend) Open(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, strings.TrimPrefix(path, "/"), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "get object %s: %s", path, err)
	}

	// GetObject is lazy; Stat forces the existence check before we commit
	// to a response.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, errors.Wrapf(ErrBackendUnavailable, "stat object %s: %s", path, err)
	}

	if offset > 0 {
		if _, err := obj.Seek(offset, io.SeekStart); err != nil {
			_ = obj.Close()
			return nil, errors.Wrapf(ErrBackendUnavailable, "seek object %s to %d: %s", path, offset, err)
		}
	}

	return obj, nil
}
