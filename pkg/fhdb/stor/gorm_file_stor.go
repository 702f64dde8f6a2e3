package stor

import (
	"fmt"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"gorm.io/gorm"
)

type GormFileStor struct {
	db *gorm.DB
}

func NewGormFileStor(db *gorm.DB) *GormFileStor {
	return &GormFileStor{db: db}
}

func (s *GormFileStor) GetFileByID(fileID int) (*model.File, error) {
	var file model.File
	if err := s.db.First(&file, fileID).Error; err != nil {
		return nil, err
	}

	return &file, nil
}

func (s *GormFileStor) GetFileByShortURL(shortURL string) (*model.File, error) {
	var file model.File
	if err := s.db.Where("short_url = ?", shortURL).First(&file).Error; err != nil {
		return nil, err
	}

	return &file, nil
}

func (s *GormFileStor) GetActiveFileByShortURL(shortURL string) (*model.File, error) {
	var file model.File
	err := s.db.Where("short_url = ?", shortURL).
		Where("status = ?", model.FileStatusActive).
		First(&file).Error
	if err != nil {
		return nil, err
	}

	return &file, nil
}

func (s *GormFileStor) TrashFile(file *model.File, reasonID int) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":           model.FileStatusTrash,
			"status_reason_id": reasonID,
			"folder_id":        nil,
		}
		if err := tx.Model(file).Updates(updates).Error; err != nil {
			return err
		}

		file.Status = model.FileStatusTrash
		file.StatusReasonID = reasonID
		file.FolderID = nil
		return nil
	})
}

func (s *GormFileStor) RestoreFile(file *model.File, folderID *int) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":    model.FileStatusActive,
			"folder_id": folderID,
		}
		if err := tx.Model(file).Updates(updates).Error; err != nil {
			return err
		}

		file.Status = model.FileStatusActive
		file.FolderID = folderID
		return nil
	})
}

// MarkFileDeleted sets the row as deleted and clears grouping/dedup fields.
// The backend bytes are removed separately through the file action queue.
func (s *GormFileStor) MarkFileDeleted(file *model.File, reasonID int) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":           model.FileStatusDeleted,
			"status_reason_id": reasonID,
			"content_hash":     "",
			"folder_id":        nil,
		}
		if err := tx.Model(file).Updates(updates).Error; err != nil {
			return err
		}

		file.Status = model.FileStatusDeleted
		file.StatusReasonID = reasonID
		file.ContentHash = ""
		file.FolderID = nil
		return nil
	})
}

func (s *GormFileStor) SetLastAccessed(file *model.File) error {
	return s.db.Model(file).Update("last_accessed_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}

// SyncVisits recomputes files.visits from the stats table rather than
// incrementing, so replayed stat writes cannot drift the counter.
func (s *GormFileStor) SyncVisits(file *model.File) error {
	return s.db.Model(file).
		Update("visits", gorm.Expr("(SELECT COUNT(id) FROM stats WHERE file_id = ?)", file.ID)).Error
}

func (s *GormFileStor) HasActiveDuplicate(contentHash string, excludeFileID int) (bool, error) {
	if contentHash == "" {
		return false, nil
	}

	var count int64
	err := s.db.Model(&model.File{}).
		Where("content_hash = ?", contentHash).
		Where("status <> ?", model.FileStatusDeleted).
		Where("id <> ?", excludeFileID).
		Count(&count).Error

	return count > 0, err
}

// PayloadReferenced reports whether any non-deleted file row on serverID
// still points at localFilePath. The orphan scan uses it to decide if
// payload bytes on disk are stray.
func (s *GormFileStor) PayloadReferenced(serverID int, localFilePath string) (bool, error) {
	var count int64
	err := s.db.Model(&model.File{}).
		Where("server_id = ?", serverID).
		Where("local_file_path = ?", localFilePath).
		Where("status <> ?", model.FileStatusDeleted).
		Count(&count).Error

	return count > 0, err
}

func (s *GormFileStor) SetServer(fileID, serverID int) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Model(&model.File{}).Where("id = ?", fileID).
			Update("server_id", serverID).Error
	})
}

func (s *GormFileStor) CreateFile(file *model.File) (*model.File, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(file).Error
	})

	return file, err
}

// NextAvailableCopyName finds the first "name (N).ext" not already used by an
// active file in the same folder for the same owner.
func (s *GormFileStor) NextAvailableCopyName(ownerID int, folderID *int, name, extension string) (string, error) {
	candidate := name
	for n := 2; ; n++ {
		var count int64
		q := s.db.Model(&model.File{}).
			Where("original_filename = ?", candidate).
			Where("status = ?", model.FileStatusActive).
			Where("owner_id = ? OR uploader_id = ?", ownerID, ownerID)
		if folderID == nil {
			q = q.Where("folder_id IS NULL")
		} else {
			q = q.Where("folder_id = ?", *folderID)
		}

		if err := q.Count(&count).Error; err != nil {
			return "", err
		}

		if count == 0 {
			return candidate, nil
		}

		base := name
		extWithDot := "." + extension
		if len(base) > len(extWithDot) && base[len(base)-len(extWithDot):] == extWithDot {
			base = base[:len(base)-len(extWithDot)]
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, n, extWithDot)
	}
}
