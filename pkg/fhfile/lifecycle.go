// Package fhfile implements the lifecycle of stored files: trash,
// restore, hard delete, relocation between storage servers, and
// duplication. Backend byte operations never happen inline; they go
// through the file action queue and run in fhqueued.
package fhfile

import (
	"fmt"

	"github.com/apex/log"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
)

var (
	ErrNotTrashed  = errors.New("file is not in the trash")
	ErrNotActive   = errors.New("file is not active")
	ErrAlreadyGone = errors.New("file is already deleted")
)

type LifecycleService struct {
	files   stor.FileStor
	actions stor.FileActionStor
	stats   stor.StatStor
	ledger  stor.TransferLedgerStor
	servers stor.StorageServerStor
}

func NewLifecycleService(files stor.FileStor, actions stor.FileActionStor, stats stor.StatStor, ledger stor.TransferLedgerStor, servers stor.StorageServerStor) *LifecycleService {
	return &LifecycleService{
		files:   files,
		actions: actions,
		stats:   stats,
		ledger:  ledger,
		servers: servers,
	}
}

// Trash soft-deletes an active file. The payload stays where it is and
// the file can be restored.
func (s *LifecycleService) Trash(file *model.File, reasonID int) error {
	switch file.Status {
	case model.FileStatusActive:
		return s.files.TrashFile(file, reasonID)
	case model.FileStatusDeleted:
		return ErrAlreadyGone
	default:
		return ErrNotActive
	}
}

// Restore moves a trashed file back to active, optionally into a folder.
func (s *LifecycleService) Restore(file *model.File, folderID *int) error {
	if file.Status != model.FileStatusTrash {
		return ErrNotTrashed
	}

	return s.files.RestoreFile(file, folderID)
}

// Delete hard-deletes a file: the row is marked deleted, its ledger and
// stat rows are cleared, and removal of the backend bytes is queued
// unless another live file still shares the payload by content hash.
func (s *LifecycleService) Delete(file *model.File, reasonID int) error {
	if file.Status == model.FileStatusDeleted {
		return ErrAlreadyGone
	}

	shared, err := s.files.HasActiveDuplicate(file.ContentHash, file.ID)
	if err != nil {
		return errors.Wrap(err, "duplicate check failed")
	}

	// Clearing the row first keeps the file unreachable even if queueing
	// the payload removal fails; the orphan scan picks strays up later.
	if err := s.files.MarkFileDeleted(file, reasonID); err != nil {
		return err
	}

	if err := s.ledger.DeleteForFile(file.ID); err != nil {
		log.WithError(err).Errorf("failed clearing ledger rows for file %d", file.ID)
	}

	if err := s.stats.DeleteForFile(file.ID); err != nil {
		log.WithError(err).Errorf("failed clearing stats for file %d", file.ID)
	}

	if shared {
		log.Infof("payload for file %d retained, another live file shares its content", file.ID)
		return nil
	}

	if _, err := s.actions.QueueDelete(file.ServerID, file.LocalFilePath, file.ID); err != nil {
		log.WithError(err).Errorf("failed queueing payload removal for file %d", file.ID)
	}

	return nil
}

// Relocate queues a move of the file's payload to another storage
// server. The file row keeps pointing at the old server until the worker
// finishes the copy.
func (s *LifecycleService) Relocate(file *model.File, newServerID int) error {
	if file.Status != model.FileStatusActive {
		return ErrNotActive
	}

	if file.ServerID == newServerID {
		return nil
	}

	if _, err := s.servers.GetServerByID(newServerID); err != nil {
		return errors.Wrapf(err, "no storage server %d", newServerID)
	}

	pending, err := s.actions.HasPendingForFile(file.ID)
	if err != nil {
		return err
	}
	if pending {
		return fmt.Errorf("file %d already has a queued action", file.ID)
	}

	_, err = s.actions.QueueMove(file.ServerID, file.LocalFilePath, file.ID, newServerID)
	return err
}

// Duplicate creates a new active file for ownerID sharing the original's
// payload. Dedup-safe deletion makes payload sharing free: the bytes are
// only removed when the last live file referencing them goes.
func (s *LifecycleService) Duplicate(file *model.File, ownerID int, folderID *int) (*model.File, error) {
	if file.Status != model.FileStatusActive {
		return nil, ErrNotActive
	}

	name, err := s.files.NextAvailableCopyName(ownerID, folderID, file.OriginalFilename, file.Extension)
	if err != nil {
		return nil, errors.Wrap(err, "could not pick a copy name")
	}

	shortURL, err := randomShortURL()
	if err != nil {
		return nil, err
	}

	deleteHash, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	accessHash, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	copyOwner := ownerID
	dup := &model.File{
		ShortURL:         shortURL,
		OriginalFilename: name,
		Extension:        file.Extension,
		MimeType:         file.MimeType,
		Size:             file.Size,
		LocalFilePath:    file.LocalFilePath,
		ServerID:         file.ServerID,
		OwnerID:          &copyOwner,
		UploaderID:       &copyOwner,
		Status:           model.FileStatusActive,
		ContentHash:      file.ContentHash,
		DeleteHash:       deleteHash,
		AccessHash:       accessHash,
		Public:           file.Public,
		FolderID:         folderID,
	}

	return s.files.CreateFile(dup)
}

// randomShortURL draws a short url component from random bytes. Collision
// odds are negligible at this length; the unique index catches the rest.
func randomShortURL() (string, error) {
	b, err := uuid.GenerateRandomBytes(8)
	if err != nil {
		return "", errors.Wrap(err, "short url generation failed")
	}

	return fmt.Sprintf("%x", b), nil
}
