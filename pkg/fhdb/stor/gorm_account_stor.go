package stor

import (
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"gorm.io/gorm"
)

type GormAccountStor struct {
	db *gorm.DB
}

func NewGormAccountStor(db *gorm.DB) *GormAccountStor {
	return &GormAccountStor{db: db}
}

func (s *GormAccountStor) GetAccountByID(accountID int) (*model.Account, error) {
	var account model.Account
	if err := s.db.First(&account, accountID).Error; err != nil {
		return nil, err
	}

	return &account, nil
}

func (s *GormAccountStor) GetAccountByAPIKey(apikey string) (*model.Account, error) {
	var account model.Account
	if err := s.db.Where("api_key = ?", apikey).First(&account).Error; err != nil {
		return nil, err
	}

	return &account, nil
}

func (s *GormAccountStor) GetTierByID(tierID int) (*model.AccountTier, error) {
	var tier model.AccountTier
	if err := s.db.First(&tier, tierID).Error; err != nil {
		return nil, err
	}

	return &tier, nil
}

func (s *GormAccountStor) GetDefaultFreeTier() (*model.AccountTier, error) {
	var tier model.AccountTier
	if err := s.db.Where("default_free = ?", true).First(&tier).Error; err != nil {
		return nil, err
	}

	return &tier, nil
}

// SetRemainingBandwidth stores the new remaining quota. A nil remaining is
// the unlimited sentinel; a negative value is never stored.
func (s *GormAccountStor) SetRemainingBandwidth(accountID int, remaining *int64) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Model(&model.Account{}).
			Where("id = ?", accountID).
			Update("remaining_bandwidth", remaining).Error
	})
}

func (s *GormAccountStor) DowngradeToTier(accountID int, tierID int, when time.Time) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Model(&model.Account{}).
			Where("id = ?", accountID).
			Updates(map[string]interface{}{
				"tier_id":             tierID,
				"paid_expires_at":     when,
				"remaining_bandwidth": nil,
			}).Error
	})
}
