package model

import "time"

// Stat records one completed download for reporting. The files.visits
// counter is periodically synced from this table.
type Stat struct {
	ID        int       `json:"id"`
	FileID    int       `json:"file_id"`
	IPAddress string    `json:"ip_address"`
	AccountID *int      `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Stat) TableName() string {
	return "stats"
}
