package fhqueue

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/filehaven/filehaven/pkg/clog"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/saracen/walker"
	"golang.org/x/sync/semaphore"
)

const defaultScanConcurrency = 8

// OrphanScanner walks a local storage server's payload tree looking for
// files no live row references: leftovers from failed moves or deletes
// that never got queued. Found orphans are removed unless DryRun is set,
// in which case they are only logged.
type OrphanScanner struct {
	files  stor.FileStor
	DryRun bool
	slots  *semaphore.Weighted
}

func NewOrphanScanner(files stor.FileStor) *OrphanScanner {
	return &OrphanScanner{
		files: files,
		slots: semaphore.NewWeighted(defaultScanConcurrency),
	}
}

// Scan walks the payload tree of server. Returns the number of orphans
// found. The walk is concurrent; the semaphore keeps the DB reference
// checks from swamping the connection pool.
func (s *OrphanScanner) Scan(ctx context.Context, server *model.StorageServer) (int, error) {
	if !server.IsLocal() {
		// Remote trees are authoritative on their own servers; only
		// local payload roots are scanned.
		return 0, nil
	}

	root := server.DocRoot
	if server.StoragePath != "" {
		root = filepath.Join(root, server.StoragePath)
	}

	var (
		mu      sync.Mutex
		orphans int
	)

	walkFn := func(pathname string, fi os.FileInfo) error {
		if fi.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, pathname)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		// Partial uploads and sidecar files are not payloads.
		if strings.HasSuffix(rel, ".part") || strings.HasPrefix(filepath.Base(rel), ".") {
			return nil
		}

		if err := s.slots.Acquire(ctx, 1); err != nil {
			return err
		}
		referenced, err := s.files.PayloadReferenced(server.ID, rel)
		s.slots.Release(1)
		if err != nil {
			clog.UsingCtx(clog.QueueCtx).WithError(err).Errorf("reference check failed for %s", rel)
			return nil
		}
		if referenced {
			return nil
		}

		mu.Lock()
		orphans++
		mu.Unlock()

		if s.DryRun {
			clog.UsingCtx(clog.QueueCtx).Infof("orphaned payload %s on server %d (dry run)", rel, server.ID)
			return nil
		}

		if err := os.Remove(pathname); err != nil {
			clog.UsingCtx(clog.QueueCtx).WithError(err).Errorf("failed removing orphaned payload %s", pathname)
			return nil
		}

		clog.UsingCtx(clog.QueueCtx).Infof("removed orphaned payload %s on server %d", rel, server.ID)
		return nil
	}

	errorCb := walker.WithErrorCallback(func(pathname string, err error) error {
		// Unreadable entries are skipped, not fatal to the scan.
		clog.UsingCtx(clog.QueueCtx).WithError(err).Errorf("cannot read %s during orphan scan", pathname)
		return nil
	})

	err := walker.WalkWithContext(ctx, root, walkFn, errorCb)

	return orphans, err
}
