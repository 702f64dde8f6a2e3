package stor

import (
	"sync"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
)

type InMemoryStatStor struct {
	mu     sync.Mutex
	nextID int
	stats  []model.Stat
}

func NewInMemoryStatStor() *InMemoryStatStor {
	return &InMemoryStatStor{nextID: 1}
}

func (s *InMemoryStatStor) RecordDownload(fileID int, ipAddress string, accountID *int) (*model.Stat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat := model.Stat{
		ID:        s.nextID,
		FileID:    fileID,
		IPAddress: ipAddress,
		AccountID: accountID,
		CreatedAt: time.Now(),
	}
	s.nextID++
	s.stats = append(s.stats, stat)

	return &stat, nil
}

func (s *InMemoryStatStor) CountForFile(fileID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, st := range s.stats {
		if st.FileID == fileID {
			count++
		}
	}

	return count, nil
}

func (s *InMemoryStatStor) DeleteForFile(fileID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []model.Stat
	for _, st := range s.stats {
		if st.FileID != fileID {
			kept = append(kept, st)
		}
	}
	s.stats = kept

	return nil
}
