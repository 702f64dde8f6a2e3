package stor

import (
	"errors"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"gorm.io/gorm"
)

type GormDownloadTokenStor struct {
	db *gorm.DB
}

func NewGormDownloadTokenStor(db *gorm.DB) *GormDownloadTokenStor {
	return &GormDownloadTokenStor{db: db}
}

func (s *GormDownloadTokenStor) GetToken(fileID int, token string) (*model.DownloadToken, error) {
	var t model.DownloadToken
	err := s.db.Where("file_id = ?", fileID).
		Where("token = ?", token).
		First(&t).Error
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (s *GormDownloadTokenStor) GetTokenForIP(fileID int, token, ipAddress string) (*model.DownloadToken, error) {
	var t model.DownloadToken
	err := s.db.Where("file_id = ?", fileID).
		Where("token = ?", token).
		Where("ip_address = ?", ipAddress).
		First(&t).Error
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (s *GormDownloadTokenStor) TokenExists(fileID int, token string) (bool, error) {
	_, err := s.GetToken(fileID, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *GormDownloadTokenStor) CreateToken(token *model.DownloadToken) (*model.DownloadToken, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(token).Error
	})

	return token, err
}

func (s *GormDownloadTokenStor) DeleteExpired(now time.Time) error {
	return s.db.Where("expires_at < ?", now).Delete(&model.DownloadToken{}).Error
}

func (s *GormDownloadTokenStor) DeleteToken(token *model.DownloadToken) error {
	return s.db.Delete(&model.DownloadToken{}, token.ID).Error
}
