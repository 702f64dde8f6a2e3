package model

import "time"

// Transfer ledger statuses.
const (
	TransferDownloading = "downloading"
	TransferFinished    = "finished"
	TransferTimedOut    = "timeout"
	TransferErrored     = "error"
)

// TransferLedgerEntry is the ephemeral row used for admission counting and
// stall detection. It is not an audit log; finished rows are purged.
type TransferLedgerEntry struct {
	ID         int       `json:"id"`
	FileID     int       `json:"file_id"`
	IPAddress  string    `json:"ip_address"`
	Status     string    `json:"status"`
	RangeStart int64     `json:"range_start"`
	RangeEnd   int64     `json:"range_end"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (TransferLedgerEntry) TableName() string {
	return "transfer_ledger"
}
