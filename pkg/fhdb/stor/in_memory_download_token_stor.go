package stor

import (
	"fmt"
	"sync"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
)

type InMemoryDownloadTokenStor struct {
	mu     sync.Mutex
	nextID int
	tokens []*model.DownloadToken
}

func NewInMemoryDownloadTokenStor() *InMemoryDownloadTokenStor {
	return &InMemoryDownloadTokenStor{nextID: 1}
}

func (s *InMemoryDownloadTokenStor) GetToken(fileID int, token string) (*model.DownloadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.FileID == fileID && t.Token == token {
			return t, nil
		}
	}

	return nil, fmt.Errorf("no such token for file %d", fileID)
}

func (s *InMemoryDownloadTokenStor) GetTokenForIP(fileID int, token, ipAddress string) (*model.DownloadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.FileID == fileID && t.Token == token && t.IPAddress == ipAddress {
			return t, nil
		}
	}

	return nil, fmt.Errorf("no such token for file %d and address %s", fileID, ipAddress)
}

func (s *InMemoryDownloadTokenStor) TokenExists(fileID int, token string) (bool, error) {
	_, err := s.GetToken(fileID, token)
	return err == nil, nil
}

func (s *InMemoryDownloadTokenStor) CreateToken(token *model.DownloadToken) (*model.DownloadToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token.ID = s.nextID
	s.nextID++
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	s.tokens = append(s.tokens, token)

	return token, nil
}

func (s *InMemoryDownloadTokenStor) DeleteExpired(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*model.DownloadToken
	for _, t := range s.tokens {
		if !t.ExpiresAt.Before(now) {
			kept = append(kept, t)
		}
	}
	s.tokens = kept

	return nil
}

func (s *InMemoryDownloadTokenStor) DeleteToken(token *model.DownloadToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*model.DownloadToken
	for _, t := range s.tokens {
		if t.ID != token.ID {
			kept = append(kept, t)
		}
	}
	s.tokens = kept

	return nil
}
