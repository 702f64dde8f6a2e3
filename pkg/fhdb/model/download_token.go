package model

import "time"

// DownloadToken grants download access to a single file without a session.
// Speed/thread/attachment settings on the token override the tier defaults
// of whatever account (if any) the token is bound to.
type DownloadToken struct {
	ID            int       `json:"id"`
	Token         string    `json:"token"`
	AccountID     *int      `json:"account_id"`
	IPAddress     string    `json:"ip_address"`
	FileID        int       `json:"file_id"`
	DownloadSpeed int64     `json:"download_speed"`
	MaxThreads    int       `json:"max_threads"`
	Attachment    bool      `json:"attachment"`
	ProcessHooks  bool      `json:"process_hooks"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (DownloadToken) TableName() string {
	return "download_tokens"
}

func (t DownloadToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
