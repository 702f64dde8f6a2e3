package fhqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/filehaven/filehaven/pkg/clog"
	"github.com/filehaven/filehaven/pkg/delivery"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

const (
	defaultPollInterval   = 10 * time.Second
	defaultMaxConcurrency = 4
)

// ActionWorker drains the file action queue: payload removals after hard
// deletes and payload moves between storage servers.
type ActionWorker struct {
	files    stor.FileStor
	actions  stor.FileActionStor
	servers  stor.StorageServerStor
	interval time.Duration
	slots    *semaphore.Weighted
}

func NewActionWorker(files stor.FileStor, actions stor.FileActionStor, servers stor.StorageServerStor, maxConcurrency int) *ActionWorker {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}

	return &ActionWorker{
		files:    files,
		actions:  actions,
		servers:  servers,
		interval: defaultPollInterval,
		slots:    semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// Run polls the queue until ctx is canceled. In-flight actions are given
// a chance to finish before Run returns.
func (w *ActionWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			w.drain(ctx, &wg)
		}
	}
}

// drain claims pending actions one at a time, marking each processing
// before dispatching it so a concurrent poll cannot claim it again.
func (w *ActionWorker) drain(ctx context.Context, wg *sync.WaitGroup) {
	for {
		action, err := w.actions.NextPending()
		if err != nil {
			clog.UsingCtx(clog.QueueCtx).WithError(err).Error("failed polling file action queue")
			return
		}
		if action == nil {
			return
		}

		if err := w.actions.MarkProcessing(action); err != nil {
			clog.UsingCtx(clog.QueueCtx).WithError(err).Errorf("failed claiming action %d", action.ID)
			return
		}

		if err := w.slots.Acquire(ctx, 1); err != nil {
			// Canceled while waiting for a slot; put the claim back.
			_ = w.actions.MarkErrored(action, err)
			return
		}

		wg.Add(1)
		go func(action *model.FileAction) {
			defer wg.Done()
			defer w.slots.Release(1)

			if err := w.process(ctx, action); err != nil {
				clog.UsingCtx(clog.QueueCtx).WithError(err).Errorf("action %d (%s) failed", action.ID, action.Action)
				_ = w.actions.MarkErrored(action, err)
				return
			}

			_ = w.actions.MarkDone(action)
		}(action)
	}
}

func (w *ActionWorker) process(ctx context.Context, action *model.FileAction) error {
	server, err := w.servers.GetServerByID(action.ServerID)
	if err != nil {
		return errors.Wrapf(err, "no storage server %d", action.ServerID)
	}

	switch action.Action {
	case model.FileActionDelete:
		return Remove(ctx, server, action.Path)

	case model.FileActionMove:
		if action.NewServerID == nil {
			return fmt.Errorf("move action %d has no target server", action.ID)
		}
		return w.move(ctx, action, server, *action.NewServerID)

	default:
		return fmt.Errorf("unknown action kind %q", action.Action)
	}
}

// move copies the payload to the target server, re-points the file row,
// then removes the source bytes. A failure between copy and re-point
// leaves both copies in place, which the orphan scan resolves later.
func (w *ActionWorker) move(ctx context.Context, action *model.FileAction, source *model.StorageServer, targetID int) error {
	target, err := w.servers.GetServerByID(targetID)
	if err != nil {
		return errors.Wrapf(err, "no storage server %d", targetID)
	}

	file, err := w.files.GetFileByID(action.FileID)
	if err != nil {
		return errors.Wrapf(err, "no file %d for move", action.FileID)
	}

	backend, err := delivery.BackendFor(source)
	if err != nil {
		return err
	}

	sourcePath := file.PathOnServer(source.DocRoot, source.StoragePath)
	if !source.IsLocal() {
		sourcePath = file.PathOnServer("", source.StoragePath)
	}

	src, err := backend.Open(ctx, sourcePath, 0)
	if err != nil {
		return errors.Wrapf(err, "open payload of file %d on server %d", file.ID, source.ID)
	}
	defer func() {
		_ = src.Close()
	}()

	if err := Store(ctx, target, file.LocalFilePath, src, file.Size); err != nil {
		return errors.Wrapf(err, "copy payload of file %d to server %d", file.ID, target.ID)
	}

	if err := w.files.SetServer(file.ID, target.ID); err != nil {
		return errors.Wrapf(err, "re-point file %d at server %d", file.ID, target.ID)
	}

	if err := Remove(ctx, source, action.Path); err != nil {
		clog.UsingCtx(clog.QueueCtx).WithError(err).
			Errorf("file %d moved but source payload on server %d not removed", file.ID, source.ID)
	}

	return nil
}
