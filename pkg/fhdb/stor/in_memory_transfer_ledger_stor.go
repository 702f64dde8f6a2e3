package stor

import (
	"sync"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
)

type InMemoryTransferLedgerStor struct {
	mu      sync.Mutex
	nextID  int
	entries []*model.TransferLedgerEntry
}

func NewInMemoryTransferLedgerStor() *InMemoryTransferLedgerStor {
	return &InMemoryTransferLedgerStor{nextID: 1}
}

func (s *InMemoryTransferLedgerStor) CountActive(ipAddress string, updatedSince time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.entries {
		if e.IPAddress == ipAddress && e.Status == model.TransferDownloading && !e.UpdatedAt.Before(updatedSince) {
			count++
		}
	}

	return count, nil
}

func (s *InMemoryTransferLedgerStor) CreateEntry(entry *model.TransferLedgerEntry) (*model.TransferLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID
	s.nextID++
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}
	s.entries = append(s.entries, entry)

	return entry, nil
}

func (s *InMemoryTransferLedgerStor) TouchEntry(entryID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == entryID {
			e.UpdatedAt = time.Now()
		}
	}

	return nil
}

func (s *InMemoryTransferLedgerStor) FinishEntry(entryID int, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == entryID {
			e.Status = status
		}
	}

	return nil
}

func (s *InMemoryTransferLedgerStor) MarkTimedOut(updatedBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.Status == model.TransferDownloading && e.UpdatedAt.Before(updatedBefore) {
			e.Status = model.TransferTimedOut
		}
	}

	return nil
}

func (s *InMemoryTransferLedgerStor) PurgeSettled(updatedBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*model.TransferLedgerEntry
	for _, e := range s.entries {
		if e.Status == model.TransferDownloading || !e.UpdatedAt.Before(updatedBefore) {
			kept = append(kept, e)
		}
	}
	s.entries = kept

	return nil
}

func (s *InMemoryTransferLedgerStor) DeleteForFile(fileID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*model.TransferLedgerEntry
	for _, e := range s.entries {
		if e.FileID != fileID {
			kept = append(kept, e)
		}
	}
	s.entries = kept

	return nil
}

// GetEntry returns a copy of the entry, for test assertions.
func (s *InMemoryTransferLedgerStor) GetEntry(entryID int) (model.TransferLedgerEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.ID == entryID {
			return *e, true
		}
	}

	return model.TransferLedgerEntry{}, false
}
