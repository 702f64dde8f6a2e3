package apimiddleware

import (
	"sync"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
)

// APIKeyCache fronts account-by-apikey lookups so every authenticated
// request does not hit the database.
type APIKeyCache struct {
	apikeyCacheMu sync.RWMutex
	cache         map[string]*model.Account
	accountStor   stor.AccountStor
}

func NewAPIKeyCache(accountStor stor.AccountStor) *APIKeyCache {
	return &APIKeyCache{
		cache:       make(map[string]*model.Account),
		accountStor: accountStor,
	}
}

func (c *APIKeyCache) GetAccountByAPIKey(apikey string) (*model.Account, error) {
	c.apikeyCacheMu.RLock()

	if account, ok := c.cache[apikey]; ok {
		c.apikeyCacheMu.RUnlock()
		return account, nil
	}

	// Need to upgrade to a Write Lock
	c.apikeyCacheMu.RUnlock()
	c.apikeyCacheMu.Lock()
	defer c.apikeyCacheMu.Unlock()

	// Check again after acquiring the write lock. A different thread may
	// have filled the entry between the unlock and lock above.
	if account, ok := c.cache[apikey]; ok {
		return account, nil
	}

	account, err := c.accountStor.GetAccountByAPIKey(apikey)
	if err != nil {
		// No account matching that key
		return nil, err
	}

	c.cache[apikey] = account
	return account, nil
}

func (c *APIKeyCache) DeleteAccountByAPIKey(apikey string) {
	c.apikeyCacheMu.Lock()
	defer c.apikeyCacheMu.Unlock()
	delete(c.cache, apikey)
}
