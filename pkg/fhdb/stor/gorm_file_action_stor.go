package stor

import (
	"errors"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"gorm.io/gorm"
)

type GormFileActionStor struct {
	db *gorm.DB
}

func NewGormFileActionStor(db *gorm.DB) *GormFileActionStor {
	return &GormFileActionStor{db: db}
}

func (s *GormFileActionStor) QueueDelete(serverID int, path string, fileID int) (*model.FileAction, error) {
	action := &model.FileAction{
		FileID:   fileID,
		ServerID: serverID,
		Path:     path,
		Action:   model.FileActionDelete,
		Status:   model.FileActionPending,
	}

	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(action).Error
	})

	return action, err
}

func (s *GormFileActionStor) QueueMove(serverID int, path string, fileID, newServerID int) (*model.FileAction, error) {
	action := &model.FileAction{
		FileID:      fileID,
		ServerID:    serverID,
		Path:        path,
		Action:      model.FileActionMove,
		NewServerID: &newServerID,
		Status:      model.FileActionPending,
	}

	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(action).Error
	})

	return action, err
}

func (s *GormFileActionStor) NextPending() (*model.FileAction, error) {
	var action model.FileAction
	err := s.db.Where("status = ?", model.FileActionPending).
		Order("id").
		First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &action, nil
}

func (s *GormFileActionStor) MarkProcessing(action *model.FileAction) error {
	return s.setStatus(action, model.FileActionProcessing, "")
}

func (s *GormFileActionStor) MarkDone(action *model.FileAction) error {
	return s.setStatus(action, model.FileActionDone, "")
}

func (s *GormFileActionStor) MarkErrored(action *model.FileAction, actionErr error) error {
	msg := ""
	if actionErr != nil {
		msg = actionErr.Error()
	}

	return s.setStatus(action, model.FileActionErrored, msg)
}

func (s *GormFileActionStor) setStatus(action *model.FileAction, status, lastError string) error {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Model(action).Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
		}).Error
	})
	if err == nil {
		action.Status = status
		action.LastError = lastError
	}

	return err
}

func (s *GormFileActionStor) HasPendingForFile(fileID int) (bool, error) {
	var count int64
	err := s.db.Model(&model.FileAction{}).
		Where("file_id = ?", fileID).
		Where("status IN ?", []string{model.FileActionPending, model.FileActionProcessing}).
		Count(&count).Error

	return count > 0, err
}
