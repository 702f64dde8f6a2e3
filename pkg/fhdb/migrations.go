package fhdb

import (
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"gorm.io/gorm"
)

// SqliteInMemoryDSN is the DSN tests use to get a private in-memory db.
const SqliteInMemoryDSN = "file::memory:?cache=shared"

// RunMigrations creates the schema. Production deploys manage the schema
// out of band; this exists for sqlite-backed tests and dev setups.
func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Account{},
		&model.AccountTier{},
		&model.File{},
		&model.FileAction{},
		&model.StorageServer{},
		&model.TransferLedgerEntry{},
		&model.DownloadToken{},
		&model.Stat{},
	)
}
