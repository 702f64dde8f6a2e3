package stor

import (
	"sync"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
)

type InMemoryFileActionStor struct {
	mu      sync.Mutex
	nextID  int
	actions []*model.FileAction
}

func NewInMemoryFileActionStor() *InMemoryFileActionStor {
	return &InMemoryFileActionStor{nextID: 1}
}

func (s *InMemoryFileActionStor) QueueDelete(serverID int, path string, fileID int) (*model.FileAction, error) {
	return s.add(&model.FileAction{
		FileID:   fileID,
		ServerID: serverID,
		Path:     path,
		Action:   model.FileActionDelete,
		Status:   model.FileActionPending,
	})
}

func (s *InMemoryFileActionStor) QueueMove(serverID int, path string, fileID, newServerID int) (*model.FileAction, error) {
	return s.add(&model.FileAction{
		FileID:      fileID,
		ServerID:    serverID,
		Path:        path,
		Action:      model.FileActionMove,
		NewServerID: &newServerID,
		Status:      model.FileActionPending,
	})
}

func (s *InMemoryFileActionStor) add(action *model.FileAction) (*model.FileAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action.ID = s.nextID
	s.nextID++
	s.actions = append(s.actions, action)

	return action, nil
}

func (s *InMemoryFileActionStor) NextPending() (*model.FileAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.actions {
		if a.Status == model.FileActionPending {
			return a, nil
		}
	}

	return nil, nil
}

func (s *InMemoryFileActionStor) MarkProcessing(action *model.FileAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	action.Status = model.FileActionProcessing

	return nil
}

func (s *InMemoryFileActionStor) MarkDone(action *model.FileAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	action.Status = model.FileActionDone

	return nil
}

func (s *InMemoryFileActionStor) MarkErrored(action *model.FileAction, actionErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	action.Status = model.FileActionErrored
	if actionErr != nil {
		action.LastError = actionErr.Error()
	}

	return nil
}

func (s *InMemoryFileActionStor) HasPendingForFile(fileID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.actions {
		if a.FileID == fileID && (a.Status == model.FileActionPending || a.Status == model.FileActionProcessing) {
			return true, nil
		}
	}

	return false, nil
}
