package stor

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/filehaven/filehaven/pkg/fhdb"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gormLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second * 5,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		})

	db, err := gorm.Open(sqlite.Open(fhdb.SqliteInMemoryDSN), &gorm.Config{Logger: gormLogger})
	require.NoErrorf(t, err, "gorm.Open failed: %s", err)

	sqlitedb, err := db.DB()
	require.NoError(t, err)

	// Set the sqlite db to 1 connection. This gets around table lock issues
	// from multiple threads.
	sqlitedb.SetMaxOpenConns(1)

	require.NoError(t, fhdb.RunMigrations(db))

	t.Cleanup(func() {
		_ = sqlitedb.Close()
	})

	return db
}

func createTestFile(t *testing.T, files *GormFileStor, shortURL string, ownerID int) *model.File {
	t.Helper()

	owner := ownerID
	file, err := files.CreateFile(&model.File{
		ShortURL:         shortURL,
		OriginalFilename: "notes.txt",
		Extension:        "txt",
		Size:             100,
		LocalFilePath:    "aa/" + shortURL + ".bin",
		ServerID:         1,
		OwnerID:          &owner,
		UploaderID:       &owner,
		Status:           model.FileStatusActive,
		ContentHash:      "hash-" + shortURL,
	})
	require.NoError(t, err)
	require.NotZero(t, file.ID)

	return file
}

func TestGormFileStor(t *testing.T) {
	db := newTestDB(t)
	files := NewGormFileStor(db)
	stats := NewGormStatStor(db)

	t.Run("active lookup by short url", func(t *testing.T) {
		file := createTestFile(t, files, "lookup", 1)

		got, err := files.GetActiveFileByShortURL("lookup")
		require.NoError(t, err)
		require.Equal(t, file.ID, got.ID)

		require.NoError(t, files.TrashFile(file, model.StatusReasonUser))
		_, err = files.GetActiveFileByShortURL("lookup")
		require.Error(t, err)
	})

	t.Run("trash and restore round trip", func(t *testing.T) {
		file := createTestFile(t, files, "trashme", 1)

		require.NoError(t, files.TrashFile(file, model.StatusReasonUser))
		got, err := files.GetFileByID(file.ID)
		require.NoError(t, err)
		require.Equal(t, model.FileStatusTrash, got.Status)
		require.Equal(t, model.StatusReasonUser, got.StatusReasonID)
		require.Nil(t, got.FolderID)

		folder := 3
		require.NoError(t, files.RestoreFile(file, &folder))
		got, err = files.GetFileByID(file.ID)
		require.NoError(t, err)
		require.Equal(t, model.FileStatusActive, got.Status)
		require.Equal(t, 3, *got.FolderID)
	})

	t.Run("mark deleted clears dedup fields", func(t *testing.T) {
		file := createTestFile(t, files, "killme", 1)

		require.NoError(t, files.MarkFileDeleted(file, model.StatusReasonAdmin))

		got, err := files.GetFileByID(file.ID)
		require.NoError(t, err)
		require.Equal(t, model.FileStatusDeleted, got.Status)
		require.Equal(t, model.StatusReasonAdmin, got.StatusReasonID)
		require.Empty(t, got.ContentHash)
		require.Nil(t, got.FolderID)
	})

	t.Run("active duplicate detection", func(t *testing.T) {
		a := createTestFile(t, files, "dup-a", 1)
		b := createTestFile(t, files, "dup-b", 2)

		shared, err := files.HasActiveDuplicate(a.ContentHash, a.ID)
		require.NoError(t, err)
		require.False(t, shared)

		require.NoError(t, db.Model(b).Update("content_hash", a.ContentHash).Error)

		shared, err = files.HasActiveDuplicate(a.ContentHash, a.ID)
		require.NoError(t, err)
		require.True(t, shared)

		require.NoError(t, files.MarkFileDeleted(b, model.StatusReasonUser))
		shared, err = files.HasActiveDuplicate(a.ContentHash, a.ID)
		require.NoError(t, err)
		require.False(t, shared)
	})

	t.Run("payload reference check", func(t *testing.T) {
		file := createTestFile(t, files, "payload", 1)

		referenced, err := files.PayloadReferenced(file.ServerID, file.LocalFilePath)
		require.NoError(t, err)
		require.True(t, referenced)

		referenced, err = files.PayloadReferenced(file.ServerID, "aa/nonexistent.bin")
		require.NoError(t, err)
		require.False(t, referenced)

		require.NoError(t, files.MarkFileDeleted(file, model.StatusReasonSystem))
		referenced, err = files.PayloadReferenced(file.ServerID, file.LocalFilePath)
		require.NoError(t, err)
		require.False(t, referenced)
	})

	t.Run("re-point at another server", func(t *testing.T) {
		file := createTestFile(t, files, "repoint", 1)

		require.NoError(t, files.SetServer(file.ID, 9))
		got, err := files.GetFileByID(file.ID)
		require.NoError(t, err)
		require.Equal(t, 9, got.ServerID)
	})

	t.Run("visits sync from stats", func(t *testing.T) {
		file := createTestFile(t, files, "visited", 1)

		for i := 0; i < 3; i++ {
			_, err := stats.RecordDownload(file.ID, "10.0.0.1", nil)
			require.NoError(t, err)
		}

		require.NoError(t, files.SyncVisits(file))
		got, err := files.GetFileByID(file.ID)
		require.NoError(t, err)
		require.Equal(t, 3, got.Visits)
	})

	t.Run("next available copy name", func(t *testing.T) {
		createTestFile(t, files, "copy-src", 7)

		name, err := files.NextAvailableCopyName(7, nil, "notes.txt", "txt")
		require.NoError(t, err)
		require.Equal(t, "notes (2).txt", name)

		// Nothing clashes for a different owner.
		name, err = files.NextAvailableCopyName(8, nil, "notes.txt", "txt")
		require.NoError(t, err)
		require.Equal(t, "notes.txt", name)
	})

	t.Run("last accessed timestamp", func(t *testing.T) {
		file := createTestFile(t, files, "touched", 1)

		require.NoError(t, files.SetLastAccessed(file))
		got, err := files.GetFileByID(file.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastAccessedAt)
	})
}

func TestGormTransferLedgerStor(t *testing.T) {
	db := newTestDB(t)
	ledger := NewGormTransferLedgerStor(db)

	t.Run("active count and finish", func(t *testing.T) {
		entry, err := ledger.CreateEntry(&model.TransferLedgerEntry{
			FileID:    1,
			IPAddress: "10.1.1.1",
			Status:    model.TransferDownloading,
		})
		require.NoError(t, err)

		count, err := ledger.CountActive("10.1.1.1", time.Now().Add(-time.Minute))
		require.NoError(t, err)
		require.Equal(t, 1, count)

		require.NoError(t, ledger.FinishEntry(entry.ID, model.TransferFinished))
		count, err = ledger.CountActive("10.1.1.1", time.Now().Add(-time.Minute))
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("timeout sweep flips only stale rows", func(t *testing.T) {
		stale, err := ledger.CreateEntry(&model.TransferLedgerEntry{
			FileID:    1,
			IPAddress: "10.1.1.2",
			Status:    model.TransferDownloading,
			UpdatedAt: time.Now().Add(-5 * time.Minute),
		})
		require.NoError(t, err)
		fresh, err := ledger.CreateEntry(&model.TransferLedgerEntry{
			FileID:    1,
			IPAddress: "10.1.1.2",
			Status:    model.TransferDownloading,
		})
		require.NoError(t, err)

		require.NoError(t, ledger.MarkTimedOut(time.Now().Add(-time.Minute)))

		var gotStale model.TransferLedgerEntry
		require.NoError(t, db.First(&gotStale, stale.ID).Error)
		require.Equal(t, model.TransferTimedOut, gotStale.Status)

		var gotFresh model.TransferLedgerEntry
		require.NoError(t, db.First(&gotFresh, fresh.ID).Error)
		require.Equal(t, model.TransferDownloading, gotFresh.Status)
	})

	t.Run("delete for file removes all of its rows", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			_, err := ledger.CreateEntry(&model.TransferLedgerEntry{
				FileID:    7,
				IPAddress: "10.1.1.4",
				Status:    model.TransferDownloading,
			})
			require.NoError(t, err)
		}
		other, err := ledger.CreateEntry(&model.TransferLedgerEntry{
			FileID:    8,
			IPAddress: "10.1.1.4",
			Status:    model.TransferDownloading,
		})
		require.NoError(t, err)

		require.NoError(t, ledger.DeleteForFile(7))

		var count int64
		require.NoError(t, db.Model(&model.TransferLedgerEntry{}).Where("file_id = ?", 7).Count(&count).Error)
		require.Zero(t, count)

		var kept model.TransferLedgerEntry
		require.NoError(t, db.First(&kept, other.ID).Error)
	})

	t.Run("purge removes settled rows only", func(t *testing.T) {
		settled, err := ledger.CreateEntry(&model.TransferLedgerEntry{
			FileID:    2,
			IPAddress: "10.1.1.3",
			Status:    model.TransferFinished,
			UpdatedAt: time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)
		active, err := ledger.CreateEntry(&model.TransferLedgerEntry{
			FileID:    2,
			IPAddress: "10.1.1.3",
			Status:    model.TransferDownloading,
			UpdatedAt: time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)

		require.NoError(t, ledger.PurgeSettled(time.Now().Add(-time.Minute)))

		var gotSettled model.TransferLedgerEntry
		require.Error(t, db.First(&gotSettled, settled.ID).Error)

		var gotActive model.TransferLedgerEntry
		require.NoError(t, db.First(&gotActive, active.ID).Error)
	})
}

func TestGormStatStor(t *testing.T) {
	db := newTestDB(t)
	stats := NewGormStatStor(db)

	t.Run("delete for file removes only its stats", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := stats.RecordDownload(5, "10.3.3.1", nil)
			require.NoError(t, err)
		}
		_, err := stats.RecordDownload(6, "10.3.3.1", nil)
		require.NoError(t, err)

		require.NoError(t, stats.DeleteForFile(5))

		count, err := stats.CountForFile(5)
		require.NoError(t, err)
		require.Zero(t, count)

		count, err = stats.CountForFile(6)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}

func TestGormDownloadTokenStor(t *testing.T) {
	db := newTestDB(t)
	tokens := NewGormDownloadTokenStor(db)

	t.Run("create and get", func(t *testing.T) {
		created, err := tokens.CreateToken(&model.DownloadToken{
			Token:     "tok-1",
			FileID:    1,
			IPAddress: "10.2.2.1",
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
		require.NotZero(t, created.ID)

		got, err := tokens.GetToken(1, "tok-1")
		require.NoError(t, err)
		require.Equal(t, created.ID, got.ID)

		_, err = tokens.GetToken(2, "tok-1")
		require.Error(t, err)

		exists, err := tokens.TokenExists(1, "tok-1")
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("ip-locked lookup", func(t *testing.T) {
		_, err := tokens.CreateToken(&model.DownloadToken{
			Token:     "tok-2",
			FileID:    3,
			IPAddress: "10.2.2.2",
			ExpiresAt: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)

		_, err = tokens.GetTokenForIP(3, "tok-2", "10.2.2.2")
		require.NoError(t, err)

		_, err = tokens.GetTokenForIP(3, "tok-2", "10.9.9.9")
		require.Error(t, err)
	})

	t.Run("expired tokens are purged", func(t *testing.T) {
		_, err := tokens.CreateToken(&model.DownloadToken{
			Token:     "tok-3",
			FileID:    4,
			ExpiresAt: time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)

		require.NoError(t, tokens.DeleteExpired(time.Now()))

		exists, err := tokens.TokenExists(4, "tok-3")
		require.NoError(t, err)
		require.False(t, exists)
	})
}

func TestGormAccountStor(t *testing.T) {
	db := newTestDB(t)
	accounts := NewGormAccountStor(db)

	require.NoError(t, db.Create(&model.AccountTier{ID: 10, Name: "free", Level: 1, DefaultFree: true}).Error)
	require.NoError(t, db.Create(&model.AccountTier{ID: 11, Name: "paid", Level: 5}).Error)
	remaining := int64(1000)
	require.NoError(t, db.Create(&model.Account{ID: 1, TierID: 11, APIKey: "key-1", RemainingBandwidth: &remaining}).Error)

	t.Run("lookup by api key", func(t *testing.T) {
		account, err := accounts.GetAccountByAPIKey("key-1")
		require.NoError(t, err)
		require.Equal(t, 1, account.ID)

		_, err = accounts.GetAccountByAPIKey("nope")
		require.Error(t, err)
	})

	t.Run("default free tier", func(t *testing.T) {
		tier, err := accounts.GetDefaultFreeTier()
		require.NoError(t, err)
		require.Equal(t, 10, tier.ID)
	})

	t.Run("bandwidth debit and unlimited clamp", func(t *testing.T) {
		left := int64(400)
		require.NoError(t, accounts.SetRemainingBandwidth(1, &left))
		account, err := accounts.GetAccountByID(1)
		require.NoError(t, err)
		require.Equal(t, int64(400), *account.RemainingBandwidth)

		require.NoError(t, accounts.SetRemainingBandwidth(1, nil))
		account, err = accounts.GetAccountByID(1)
		require.NoError(t, err)
		require.Nil(t, account.RemainingBandwidth)
	})

	t.Run("downgrade re-tiers and stamps expiry", func(t *testing.T) {
		when := time.Now()
		require.NoError(t, accounts.DowngradeToTier(1, 10, when))

		account, err := accounts.GetAccountByID(1)
		require.NoError(t, err)
		require.Equal(t, 10, account.TierID)
		require.NotNil(t, account.PaidExpiresAt)
	})
}
