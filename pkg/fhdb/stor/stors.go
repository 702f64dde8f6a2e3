package stor

import (
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"gorm.io/gorm"
)

type FileStor interface {
	GetFileByID(fileID int) (*model.File, error)
	GetFileByShortURL(shortURL string) (*model.File, error)
	GetActiveFileByShortURL(shortURL string) (*model.File, error)
	TrashFile(file *model.File, reasonID int) error
	RestoreFile(file *model.File, folderID *int) error
	MarkFileDeleted(file *model.File, reasonID int) error
	SetLastAccessed(file *model.File) error
	SyncVisits(file *model.File) error
	HasActiveDuplicate(contentHash string, excludeFileID int) (bool, error)
	PayloadReferenced(serverID int, localFilePath string) (bool, error)
	SetServer(fileID, serverID int) error
	CreateFile(file *model.File) (*model.File, error)
	NextAvailableCopyName(ownerID int, folderID *int, name, extension string) (string, error)
}

type StorageServerStor interface {
	GetServerByID(serverID int) (*model.StorageServer, error)
	ListServers() ([]model.StorageServer, error)
	SetDocRoot(serverID int, docRoot string) error
}

type DownloadTokenStor interface {
	GetToken(fileID int, token string) (*model.DownloadToken, error)
	GetTokenForIP(fileID int, token, ipAddress string) (*model.DownloadToken, error)
	TokenExists(fileID int, token string) (bool, error)
	CreateToken(token *model.DownloadToken) (*model.DownloadToken, error)
	DeleteExpired(now time.Time) error
	DeleteToken(token *model.DownloadToken) error
}

type TransferLedgerStor interface {
	CountActive(ipAddress string, updatedSince time.Time) (int, error)
	CreateEntry(entry *model.TransferLedgerEntry) (*model.TransferLedgerEntry, error)
	TouchEntry(entryID int) error
	FinishEntry(entryID int, status string) error
	MarkTimedOut(updatedBefore time.Time) error
	PurgeSettled(updatedBefore time.Time) error
	DeleteForFile(fileID int) error
}

type AccountStor interface {
	GetAccountByID(accountID int) (*model.Account, error)
	GetAccountByAPIKey(apikey string) (*model.Account, error)
	GetTierByID(tierID int) (*model.AccountTier, error)
	GetDefaultFreeTier() (*model.AccountTier, error)
	SetRemainingBandwidth(accountID int, remaining *int64) error
	DowngradeToTier(accountID int, tierID int, when time.Time) error
}

type FileActionStor interface {
	QueueDelete(serverID int, path string, fileID int) (*model.FileAction, error)
	QueueMove(serverID int, path string, fileID, newServerID int) (*model.FileAction, error)
	NextPending() (*model.FileAction, error)
	MarkProcessing(action *model.FileAction) error
	MarkDone(action *model.FileAction) error
	MarkErrored(action *model.FileAction, actionErr error) error
	HasPendingForFile(fileID int) (bool, error)
}

type StatStor interface {
	RecordDownload(fileID int, ipAddress string, accountID *int) (*model.Stat, error)
	CountForFile(fileID int) (int, error)
	DeleteForFile(fileID int) error
}

type Stors struct {
	FileStor           FileStor
	StorageServerStor  StorageServerStor
	DownloadTokenStor  DownloadTokenStor
	TransferLedgerStor TransferLedgerStor
	AccountStor        AccountStor
	FileActionStor     FileActionStor
	StatStor           StatStor
}

func NewGormStors(db *gorm.DB) *Stors {
	return &Stors{
		FileStor:           NewGormFileStor(db),
		StorageServerStor:  NewGormStorageServerStor(db),
		DownloadTokenStor:  NewGormDownloadTokenStor(db),
		TransferLedgerStor: NewGormTransferLedgerStor(db),
		AccountStor:        NewGormAccountStor(db),
		FileActionStor:     NewGormFileActionStor(db),
		StatStor:           NewGormStatStor(db),
	}
}
