package stor

import (
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"gorm.io/gorm"
)

type GormTransferLedgerStor struct {
	db *gorm.DB
}

func NewGormTransferLedgerStor(db *gorm.DB) *GormTransferLedgerStor {
	return &GormTransferLedgerStor{db: db}
}

func (s *GormTransferLedgerStor) CountActive(ipAddress string, updatedSince time.Time) (int, error) {
	var count int64
	err := s.db.Model(&model.TransferLedgerEntry{}).
		Where("ip_address = ?", ipAddress).
		Where("status = ?", model.TransferDownloading).
		Where("updated_at >= ?", updatedSince).
		Count(&count).Error

	return int(count), err
}

func (s *GormTransferLedgerStor) CreateEntry(entry *model.TransferLedgerEntry) (*model.TransferLedgerEntry, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(entry).Error
	})

	return entry, err
}

func (s *GormTransferLedgerStor) TouchEntry(entryID int) error {
	return s.db.Model(&model.TransferLedgerEntry{}).
		Where("id = ?", entryID).
		Update("updated_at", time.Now()).Error
}

func (s *GormTransferLedgerStor) FinishEntry(entryID int, status string) error {
	return s.db.Model(&model.TransferLedgerEntry{}).
		Where("id = ?", entryID).
		Update("status", status).Error
}

// MarkTimedOut flips stale downloading rows to timeout so they stop
// counting against the admission ceiling.
func (s *GormTransferLedgerStor) MarkTimedOut(updatedBefore time.Time) error {
	return s.db.Model(&model.TransferLedgerEntry{}).
		Where("status = ?", model.TransferDownloading).
		Where("updated_at < ?", updatedBefore).
		Update("status", model.TransferTimedOut).Error
}

func (s *GormTransferLedgerStor) PurgeSettled(updatedBefore time.Time) error {
	return s.db.Where("status <> ?", model.TransferDownloading).
		Where("updated_at < ?", updatedBefore).
		Delete(&model.TransferLedgerEntry{}).Error
}

func (s *GormTransferLedgerStor) DeleteForFile(fileID int) error {
	return s.db.Where("file_id = ?", fileID).Delete(&model.TransferLedgerEntry{}).Error
}
