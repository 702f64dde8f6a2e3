package stor

import (
	"fmt"
	"sync"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
)

type InMemoryFileStor struct {
	mu     sync.Mutex
	nextID int
	files  []*model.File
}

func NewInMemoryFileStor(files []*model.File) *InMemoryFileStor {
	nextID := 1
	for _, f := range files {
		if f.ID >= nextID {
			nextID = f.ID + 1
		}
	}

	return &InMemoryFileStor{nextID: nextID, files: files}
}

func (s *InMemoryFileStor) GetFileByID(fileID int) (*model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.files {
		if f.ID == fileID {
			return f, nil
		}
	}

	return nil, fmt.Errorf("no such file: %d", fileID)
}

func (s *InMemoryFileStor) GetFileByShortURL(shortURL string) (*model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.files {
		if f.ShortURL == shortURL {
			return f, nil
		}
	}

	return nil, fmt.Errorf("no such file: %s", shortURL)
}

func (s *InMemoryFileStor) GetActiveFileByShortURL(shortURL string) (*model.File, error) {
	f, err := s.GetFileByShortURL(shortURL)
	if err != nil {
		return nil, err
	}

	if f.Status != model.FileStatusActive {
		return nil, fmt.Errorf("file not active: %s", shortURL)
	}

	return f, nil
}

func (s *InMemoryFileStor) TrashFile(file *model.File, reasonID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file.Status = model.FileStatusTrash
	file.StatusReasonID = reasonID
	file.FolderID = nil

	return nil
}

func (s *InMemoryFileStor) RestoreFile(file *model.File, folderID *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file.Status = model.FileStatusActive
	file.FolderID = folderID

	return nil
}

func (s *InMemoryFileStor) MarkFileDeleted(file *model.File, reasonID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file.Status = model.FileStatusDeleted
	file.StatusReasonID = reasonID
	file.ContentHash = ""
	file.FolderID = nil

	return nil
}

func (s *InMemoryFileStor) SetLastAccessed(file *model.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	file.LastAccessedAt = &now

	return nil
}

func (s *InMemoryFileStor) SyncVisits(file *model.File) error {
	return nil
}

func (s *InMemoryFileStor) HasActiveDuplicate(contentHash string, excludeFileID int) (bool, error) {
	if contentHash == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.files {
		if f.ContentHash == contentHash && f.Status != model.FileStatusDeleted && f.ID != excludeFileID {
			return true, nil
		}
	}

	return false, nil
}

func (s *InMemoryFileStor) PayloadReferenced(serverID int, localFilePath string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.files {
		if f.ServerID == serverID && f.LocalFilePath == localFilePath && f.Status != model.FileStatusDeleted {
			return true, nil
		}
	}

	return false, nil
}

func (s *InMemoryFileStor) SetServer(fileID, serverID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.files {
		if f.ID == fileID {
			f.ServerID = serverID
			return nil
		}
	}

	return fmt.Errorf("no such file: %d", fileID)
}

func (s *InMemoryFileStor) CreateFile(file *model.File) (*model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file.ID = s.nextID
	s.nextID++
	s.files = append(s.files, file)

	return file, nil
}

func (s *InMemoryFileStor) NextAvailableCopyName(ownerID int, folderID *int, name, extension string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inUse := func(candidate string) bool {
		for _, f := range s.files {
			if f.OriginalFilename != candidate || f.Status != model.FileStatusActive {
				continue
			}
			if f.Owner() == ownerID || (f.UploaderID != nil && *f.UploaderID == ownerID) {
				return true
			}
		}
		return false
	}

	candidate := name
	base := name
	extWithDot := "." + extension
	if len(base) > len(extWithDot) && base[len(base)-len(extWithDot):] == extWithDot {
		base = base[:len(base)-len(extWithDot)]
	}

	for n := 2; inUse(candidate); n++ {
		candidate = fmt.Sprintf("%s (%d)%s", base, n, extWithDot)
	}

	return candidate, nil
}
