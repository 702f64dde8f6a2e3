package model

import "time"

// AdminLevel is the tier level at or above which an account is treated as
// administrative. Admin accounts are never metered or downgraded.
const AdminLevel = 20

type Account struct {
	ID                 int        `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	TierID             int        `json:"tier_id"`
	APIKey             string     `json:"-"`
	RemainingBandwidth *int64     `json:"remaining_bandwidth"`
	PaidExpiresAt      *time.Time `json:"paid_expires_at"`
	PrivateStatistics  bool       `json:"private_statistics"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// Unmetered reports whether the account has no bandwidth ceiling. A nil
// RemainingBandwidth is the unlimited sentinel.
func (a Account) Unmetered() bool {
	return a.RemainingBandwidth == nil
}

// AccountTier holds the per-tier download ceilings. MaxDownloadSpeed and
// MaxDownloadThreads of 0 mean unlimited.
type AccountTier struct {
	ID                 int       `json:"id"`
	Name               string    `json:"name"`
	Level              int       `json:"level"`
	MaxDownloadThreads int       `json:"max_download_threads"`
	MaxDownloadSpeed   int64     `json:"max_download_speed"`
	DefaultFree        bool      `json:"default_free"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (AccountTier) TableName() string {
	return "account_tiers"
}

func (t AccountTier) IsAdmin() bool {
	return t.Level >= AdminLevel
}
