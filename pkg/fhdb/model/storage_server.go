package model

import "time"

// Storage backend kinds. An object-store server carries its adapter name
// in ObjectAdapter rather than a distinct kind per provider.
const (
	ServerKindLocal  = "local"
	ServerKindDirect = "direct"
	ServerKindFTP    = "ftp"
	ServerKindSFTP   = "sftp"
	ServerKindObject = "object"
)

type StorageServer struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	Kind          string    `json:"kind"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Username      string    `json:"-"`
	Password      string    `json:"-"`
	PassiveMode   bool      `json:"passive_mode"`
	WindowsServer bool      `json:"windows_server"`
	DocRoot       string    `json:"doc_root"`
	StoragePath   string    `json:"storage_path"`
	DownloadHost  string    `json:"download_host"`
	ObjectAdapter string    `json:"object_adapter"`
	Bucket        string    `json:"bucket"`
	UseSSL        bool      `json:"use_ssl"`
	ProxyRedirect bool      `json:"proxy_redirect"`
	Sendfile      bool      `json:"sendfile"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (StorageServer) TableName() string {
	return "storage_servers"
}

func (s StorageServer) IsLocal() bool {
	return s.Kind == ServerKindLocal || s.Kind == ServerKindDirect
}
