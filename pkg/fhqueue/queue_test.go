package fhqueue

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/stretchr/testify/require"
)

func localServer(t *testing.T, id int) *model.StorageServer {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "files"), 0755))

	return &model.StorageServer{
		ID:          id,
		Kind:        model.ServerKindLocal,
		DocRoot:     root,
		StoragePath: "files",
	}
}

func writePayload(t *testing.T, server *model.StorageServer, relPath, contents string) string {
	t.Helper()

	full := filepath.Join(server.DocRoot, server.StoragePath, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(contents), 0644))

	return full
}

func TestPayload_LocalStoreAndRemove(t *testing.T) {
	server := localServer(t, 1)
	ctx := context.Background()

	src := strings.NewReader("payload bytes")
	require.NoError(t, Store(ctx, server, "ab/cd.bin", src, 13))

	full := filepath.Join(server.DocRoot, "files", "ab/cd.bin")
	got, err := os.ReadFile(full)
	require.NoError(t, err)
	require.Equal(t, "payload bytes", string(got))

	require.NoError(t, Remove(ctx, server, "ab/cd.bin"))
	_, err = os.Stat(full)
	require.True(t, os.IsNotExist(err))

	// A payload that is already gone is not an error.
	require.NoError(t, Remove(ctx, server, "ab/cd.bin"))
}

type workerFixture struct {
	worker  *ActionWorker
	files   *stor.InMemoryFileStor
	actions *stor.InMemoryFileActionStor
	source  *model.StorageServer
	target  *model.StorageServer
}

func newWorkerFixture(t *testing.T, files ...*model.File) *workerFixture {
	t.Helper()

	f := &workerFixture{
		files:   stor.NewInMemoryFileStor(files),
		actions: stor.NewInMemoryFileActionStor(),
		source:  localServer(t, 1),
		target:  localServer(t, 2),
	}

	servers := stor.NewInMemoryStorageServerStor([]model.StorageServer{*f.source, *f.target})
	f.worker = NewActionWorker(f.files, f.actions, servers, 2)

	return f
}

func (f *workerFixture) drainAll(t *testing.T) {
	t.Helper()

	var wg sync.WaitGroup
	f.worker.drain(context.Background(), &wg)
	wg.Wait()
}

func TestActionWorker_Delete(t *testing.T) {
	f := newWorkerFixture(t)
	full := writePayload(t, f.source, "aa/bb.bin", "doomed")

	action, err := f.actions.QueueDelete(1, "aa/bb.bin", 7)
	require.NoError(t, err)

	f.drainAll(t)

	require.Equal(t, model.FileActionDone, action.Status)
	_, err = os.Stat(full)
	require.True(t, os.IsNotExist(err))
}

func TestActionWorker_Move(t *testing.T) {
	owner := 5
	file := &model.File{
		ID:            7,
		Size:          12,
		LocalFilePath: "aa/bb.bin",
		ServerID:      1,
		OwnerID:       &owner,
		Status:        model.FileStatusActive,
	}
	f := newWorkerFixture(t, file)
	sourcePath := writePayload(t, f.source, "aa/bb.bin", "moving bytes")

	action, err := f.actions.QueueMove(1, "aa/bb.bin", 7, 2)
	require.NoError(t, err)

	f.drainAll(t)

	require.Equal(t, model.FileActionDone, action.Status)

	got, err := os.ReadFile(filepath.Join(f.target.DocRoot, "files", "aa/bb.bin"))
	require.NoError(t, err)
	require.Equal(t, "moving bytes", string(got))

	moved, err := f.files.GetFileByID(7)
	require.NoError(t, err)
	require.Equal(t, 2, moved.ServerID)

	_, err = os.Stat(sourcePath)
	require.True(t, os.IsNotExist(err))
}

func TestActionWorker_MissingPayloadErrorsTheMove(t *testing.T) {
	owner := 5
	file := &model.File{
		ID:            7,
		Size:          12,
		LocalFilePath: "aa/bb.bin",
		ServerID:      1,
		OwnerID:       &owner,
		Status:        model.FileStatusActive,
	}
	f := newWorkerFixture(t, file)

	action, err := f.actions.QueueMove(1, "aa/bb.bin", 7, 2)
	require.NoError(t, err)

	f.drainAll(t)

	require.Equal(t, model.FileActionErrored, action.Status)
	require.NotEmpty(t, action.LastError)

	// The row still points at the source server.
	got, err := f.files.GetFileByID(7)
	require.NoError(t, err)
	require.Equal(t, 1, got.ServerID)
}

func TestActionWorker_UnknownKindErrors(t *testing.T) {
	f := newWorkerFixture(t)

	action, err := f.actions.QueueDelete(1, "aa/bb.bin", 7)
	require.NoError(t, err)
	action.Action = "compress"

	f.drainAll(t)

	require.Equal(t, model.FileActionErrored, action.Status)
}

func TestOrphanScanner_Scan(t *testing.T) {
	owner := 5
	referenced := &model.File{
		ID:            1,
		LocalFilePath: "aa/kept.bin",
		ServerID:      1,
		OwnerID:       &owner,
		Status:        model.FileStatusActive,
	}

	newScanFixture := func(t *testing.T) (*OrphanScanner, *model.StorageServer, string, string) {
		server := localServer(t, 1)
		kept := writePayload(t, server, "aa/kept.bin", "kept")
		orphan := writePayload(t, server, "aa/orphan.bin", "stray")
		writePayload(t, server, "aa/upload.bin.part", "partial")
		writePayload(t, server, "aa/.sidecar", "meta")

		return NewOrphanScanner(stor.NewInMemoryFileStor([]*model.File{referenced})), server, kept, orphan
	}

	t.Run("dry run counts without removing", func(t *testing.T) {
		scanner, server, kept, orphan := newScanFixture(t)
		scanner.DryRun = true

		found, err := scanner.Scan(context.Background(), server)
		require.NoError(t, err)
		require.Equal(t, 1, found)

		_, err = os.Stat(orphan)
		require.NoError(t, err)
		_, err = os.Stat(kept)
		require.NoError(t, err)
	})

	t.Run("live run removes only the orphan", func(t *testing.T) {
		scanner, server, kept, orphan := newScanFixture(t)

		found, err := scanner.Scan(context.Background(), server)
		require.NoError(t, err)
		require.Equal(t, 1, found)

		_, err = os.Stat(orphan)
		require.True(t, os.IsNotExist(err))
		_, err = os.Stat(kept)
		require.NoError(t, err)

		// Partial uploads and dotfiles survive.
		_, err = os.Stat(filepath.Join(server.DocRoot, "files", "aa/upload.bin.part"))
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(server.DocRoot, "files", "aa/.sidecar"))
		require.NoError(t, err)
	})

	t.Run("remote servers are skipped", func(t *testing.T) {
		scanner, _, _, _ := newScanFixture(t)

		found, err := scanner.Scan(context.Background(), &model.StorageServer{ID: 3, Kind: model.ServerKindSFTP})
		require.NoError(t, err)
		require.Zero(t, found)
	})
}
