package model

import "time"

// File action kinds and statuses. Backend-byte removal and server moves
// are queued here and processed asynchronously by the queue daemon.
const (
	FileActionDelete = "delete"
	FileActionMove   = "move"

	FileActionPending    = "pending"
	FileActionProcessing = "processing"
	FileActionDone       = "done"
	FileActionErrored    = "error"
)

type FileAction struct {
	ID          int       `json:"id"`
	FileID      int       `json:"file_id"`
	ServerID    int       `json:"server_id"`
	Path        string    `json:"path"`
	Action      string    `json:"action"`
	NewServerID *int      `json:"new_server_id"`
	Status      string    `json:"status"`
	LastError   string    `json:"last_error"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (FileAction) TableName() string {
	return "file_actions"
}
