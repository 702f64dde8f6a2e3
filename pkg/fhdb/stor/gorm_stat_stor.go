package stor

import (
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"gorm.io/gorm"
)

type GormStatStor struct {
	db *gorm.DB
}

func NewGormStatStor(db *gorm.DB) *GormStatStor {
	return &GormStatStor{db: db}
}

func (s *GormStatStor) RecordDownload(fileID int, ipAddress string, accountID *int) (*model.Stat, error) {
	stat := &model.Stat{
		FileID:    fileID,
		IPAddress: ipAddress,
		AccountID: accountID,
	}

	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(stat).Error
	})

	return stat, err
}

func (s *GormStatStor) CountForFile(fileID int) (int, error) {
	var count int64
	err := s.db.Model(&model.Stat{}).
		Where("file_id = ?", fileID).
		Count(&count).Error

	return int(count), err
}

func (s *GormStatStor) DeleteForFile(fileID int) error {
	return s.db.Where("file_id = ?", fileID).Delete(&model.Stat{}).Error
}
