package stor

import (
	"fmt"
	"sync"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
)

type InMemoryStorageServerStor struct {
	mu      sync.Mutex
	servers []model.StorageServer
}

func NewInMemoryStorageServerStor(servers []model.StorageServer) *InMemoryStorageServerStor {
	return &InMemoryStorageServerStor{servers: servers}
}

func (s *InMemoryStorageServerStor) GetServerByID(serverID int) (*model.StorageServer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.servers {
		if s.servers[i].ID == serverID {
			server := s.servers[i]
			return &server, nil
		}
	}

	return nil, fmt.Errorf("no such storage server: %d", serverID)
}

func (s *InMemoryStorageServerStor) ListServers() ([]model.StorageServer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers := make([]model.StorageServer, len(s.servers))
	copy(servers, s.servers)

	return servers, nil
}

func (s *InMemoryStorageServerStor) SetDocRoot(serverID int, docRoot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.servers {
		if s.servers[i].ID == serverID {
			s.servers[i].DocRoot = docRoot
			return nil
		}
	}

	return fmt.Errorf("no such storage server: %d", serverID)
}
