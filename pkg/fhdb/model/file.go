package model

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// File statuses. A file only moves forward through these, except for an
// explicit restore which moves trash back to active.
const (
	FileStatusActive  = "active"
	FileStatusTrash   = "trash"
	FileStatusDeleted = "deleted"
)

// Reason codes recorded when a file is trashed or removed.
const (
	StatusReasonUser   = 2
	StatusReasonAdmin  = 3
	StatusReasonSystem = 5
)

type File struct {
	ID               int        `json:"id"`
	ShortURL         string     `json:"short_url"`
	OriginalFilename string     `json:"original_filename"`
	Extension        string     `json:"extension"`
	MimeType         string     `json:"mime_type"`
	Size             int64      `json:"size"`
	LocalFilePath    string     `json:"local_file_path"`
	ServerID         int        `json:"server_id"`
	OwnerID          *int       `json:"owner_id"`
	UploaderID       *int       `json:"uploader_id"`
	UploadedIP       string     `json:"uploaded_ip"`
	Status           string     `json:"status"`
	StatusReasonID   int        `json:"status_reason_id"`
	ContentHash      string     `json:"content_hash"`
	DeleteHash       string     `json:"-"`
	AccessHash       string     `json:"access_hash"`
	Public           bool       `json:"public"`
	FolderID         *int       `json:"folder_id"`
	Visits           int        `json:"visits"`
	LastAccessedAt   *time.Time `json:"last_accessed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (File) TableName() string {
	return "files"
}

func (f File) IsActive() bool {
	return f.Status == FileStatusActive
}

// OwnedBy reports whether accountID owns the file. Anonymous uploads
// (nil OwnerID) are owned by nobody.
func (f File) OwnedBy(accountID int) bool {
	return f.Owner() == accountID && accountID != 0
}

func (f File) Owner() int {
	if f.OwnerID == nil {
		return 0
	}

	return *f.OwnerID
}

// SafeFilenameForURL returns a form of the original filename that can be
// embedded in a download URL without escaping surprises. The extension is
// kept as-is so download managers still see the file type.
func (f File) SafeFilenameForURL() string {
	name := f.OriginalFilename
	ext := ""
	if f.Extension != "" && strings.HasSuffix(strings.ToLower(name), "."+strings.ToLower(f.Extension)) {
		name = name[:len(name)-len(f.Extension)-1]
		ext = "." + strings.ToLower(f.Extension)
	}

	return slug.Make(name) + ext
}

// FilenameForDisposition strips double quotes so the name can be placed
// inside a quoted Content-Disposition value.
func (f File) FilenameForDisposition() string {
	return strings.ReplaceAll(f.OriginalFilename, `"`, "")
}

func (f File) FilenameExcludingExtension() string {
	extWithDot := "." + f.Extension
	if strings.HasSuffix(f.OriginalFilename, extWithDot) {
		return f.OriginalFilename[:len(f.OriginalFilename)-len(extWithDot)]
	}

	return f.OriginalFilename
}

// PathOnServer joins the server's storage root with the file's relative
// path. docRoot only applies to local/direct servers; remote backends keep
// paths relative to their own storage root.
func (f File) PathOnServer(docRoot, storagePath string) string {
	base := ""
	if docRoot != "" {
		base = docRoot
	}
	if storagePath != "" {
		base = filepath.Join(base, storagePath)
	}

	return filepath.Join(base, f.LocalFilePath)
}

func (f File) IsImage() bool {
	switch strings.ToLower(f.Extension) {
	case "gif", "jpeg", "jpg", "png":
		return true
	default:
		return false
	}
}

func (f File) IsDocument() bool {
	switch strings.ToLower(f.Extension) {
	case "doc", "docx", "xls", "xlsx", "ppt", "pptx", "pdf":
		return true
	default:
		return false
	}
}

func (f File) IsVideo() bool {
	switch strings.ToLower(f.Extension) {
	case "mp4", "flv", "ogg":
		return true
	default:
		return false
	}
}

func (f File) IsAudio() bool {
	return strings.ToLower(f.Extension) == "mp3"
}
