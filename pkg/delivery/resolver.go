package delivery

import (
	"os"
	"sync"

	"github.com/apex/log"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/pkg/errors"
)

// StorageResolver maps a file's server id to its backend descriptor. The
// lookup result is cached for the lifetime of the resolver since server
// rows change rarely and every transfer needs one.
type StorageResolver struct {
	serverStor stor.StorageServerStor

	// localRoot is the storage path configured for the host this daemon
	// runs on, discovered lazily for local servers with no stored doc root.
	localRoot string

	mu    sync.Mutex
	cache map[int]*model.StorageServer
}

func NewStorageResolver(serverStor stor.StorageServerStor, localRoot string) *StorageResolver {
	return &StorageResolver{
		serverStor: serverStor,
		localRoot:  localRoot,
		cache:      make(map[int]*model.StorageServer),
	}
}

// Resolve returns the storage server a file lives on. An unresolvable id
// is ErrBackendUnavailable; the caller aborts rather than retrying.
func (r *StorageResolver) Resolve(serverID int) (*model.StorageServer, error) {
	r.mu.Lock()
	if server, ok := r.cache[serverID]; ok {
		r.mu.Unlock()
		return server, nil
	}
	r.mu.Unlock()

	server, err := r.serverStor.GetServerByID(serverID)
	if err != nil {
		return nil, errors.Wrapf(ErrBackendUnavailable, "server %d: %s", serverID, err)
	}

	if server.IsLocal() && server.DocRoot == "" {
		if err := r.discoverLocalRoot(server); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	r.cache[serverID] = server
	r.mu.Unlock()

	return server, nil
}

// discoverLocalRoot probes the configured local storage path, persists it
// on the server row, and drops the cache so later lookups see it.
func (r *StorageResolver) discoverLocalRoot(server *model.StorageServer) error {
	if r.localRoot == "" {
		return errors.Wrapf(ErrBackendUnavailable, "server %d has no doc root and no local root is configured", server.ID)
	}

	if _, err := os.Stat(r.localRoot); err != nil {
		return errors.Wrapf(ErrBackendUnavailable, "local storage root %s: %s", r.localRoot, err)
	}

	if err := r.serverStor.SetDocRoot(server.ID, r.localRoot); err != nil {
		log.WithError(err).Errorf("failed persisting doc root for server %d", server.ID)
		return errors.Wrapf(ErrBackendUnavailable, "could not store doc root for server %d", server.ID)
	}

	server.DocRoot = r.localRoot
	r.InvalidateCache()

	return nil
}

func (r *StorageResolver) InvalidateCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[int]*model.StorageServer)
}
