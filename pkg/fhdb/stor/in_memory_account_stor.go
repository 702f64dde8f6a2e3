package stor

import (
	"fmt"
	"sync"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
)

type InMemoryAccountStor struct {
	mu       sync.Mutex
	accounts []*model.Account
	tiers    []model.AccountTier
}

func NewInMemoryAccountStor(accounts []*model.Account, tiers []model.AccountTier) *InMemoryAccountStor {
	return &InMemoryAccountStor{accounts: accounts, tiers: tiers}
}

func (s *InMemoryAccountStor) GetAccountByID(accountID int) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.ID == accountID {
			return a, nil
		}
	}

	return nil, fmt.Errorf("no such account: %d", accountID)
}

func (s *InMemoryAccountStor) GetAccountByAPIKey(apikey string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.APIKey != "" && a.APIKey == apikey {
			return a, nil
		}
	}

	return nil, fmt.Errorf("no account for apikey")
}

func (s *InMemoryAccountStor) GetTierByID(tierID int) (*model.AccountTier, error) {
	for i := range s.tiers {
		if s.tiers[i].ID == tierID {
			return &s.tiers[i], nil
		}
	}

	return nil, fmt.Errorf("no such tier: %d", tierID)
}

func (s *InMemoryAccountStor) GetDefaultFreeTier() (*model.AccountTier, error) {
	for i := range s.tiers {
		if s.tiers[i].DefaultFree {
			return &s.tiers[i], nil
		}
	}

	return nil, fmt.Errorf("no default free tier configured")
}

func (s *InMemoryAccountStor) SetRemainingBandwidth(accountID int, remaining *int64) error {
	account, err := s.GetAccountByID(accountID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	account.RemainingBandwidth = remaining

	return nil
}

func (s *InMemoryAccountStor) DowngradeToTier(accountID int, tierID int, when time.Time) error {
	account, err := s.GetAccountByID(accountID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	account.TierID = tierID
	account.PaidExpiresAt = &when
	account.RemainingBandwidth = nil

	return nil
}
