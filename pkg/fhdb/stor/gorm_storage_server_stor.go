package stor

import (
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"gorm.io/gorm"
)

type GormStorageServerStor struct {
	db *gorm.DB
}

func NewGormStorageServerStor(db *gorm.DB) *GormStorageServerStor {
	return &GormStorageServerStor{db: db}
}

func (s *GormStorageServerStor) GetServerByID(serverID int) (*model.StorageServer, error) {
	var server model.StorageServer
	if err := s.db.First(&server, serverID).Error; err != nil {
		return nil, err
	}

	return &server, nil
}

func (s *GormStorageServerStor) ListServers() ([]model.StorageServer, error) {
	var servers []model.StorageServer
	if err := s.db.Find(&servers).Error; err != nil {
		return nil, err
	}

	return servers, nil
}

func (s *GormStorageServerStor) SetDocRoot(serverID int, docRoot string) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Model(&model.StorageServer{}).
			Where("id = ?", serverID).
			Update("doc_root", docRoot).Error
	})
}
