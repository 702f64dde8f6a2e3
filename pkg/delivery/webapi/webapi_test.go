package webapi

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/filehaven/filehaven/pkg/delivery"
	"github.com/filehaven/filehaven/pkg/delivery/webapi/apimiddleware"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type webTestCase struct {
	e          *echo.Echo
	engine     *delivery.Engine
	broker     *delivery.TokenBroker
	files      *stor.InMemoryFileStor
	accounts   *stor.InMemoryAccountStor
	servers    *stor.InMemoryStorageServerStor
	file       *model.File
	payload    string
	controller *DownloadController
}

func newWebTestCase(t *testing.T) *webTestCase {
	t.Helper()

	payload := strings.Repeat("abcdefgh", 512)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "files"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "files", "payload.bin"), []byte(payload), 0644))

	owner := 2
	file := &model.File{
		ID:               1,
		ShortURL:         "abc123",
		OriginalFilename: "report.pdf",
		Extension:        "pdf",
		MimeType:         "application/pdf",
		Size:             int64(len(payload)),
		LocalFilePath:    "payload.bin",
		ServerID:         1,
		OwnerID:          &owner,
		Status:           model.FileStatusActive,
	}

	serverRow := model.StorageServer{
		ID:           1,
		Kind:         model.ServerKindLocal,
		DocRoot:      root,
		StoragePath:  "files",
		DownloadHost: "dl.example.net",
	}

	tc := &webTestCase{
		e:       echo.New(),
		files:   stor.NewInMemoryFileStor([]*model.File{file}),
		servers: stor.NewInMemoryStorageServerStor([]model.StorageServer{serverRow}),
		file:    file,
		payload: payload,
	}

	tc.accounts = stor.NewInMemoryAccountStor(
		[]*model.Account{{ID: 3, TierID: 11, APIKey: "key-3"}},
		[]model.AccountTier{
			{ID: 10, Name: "free", Level: 1, DefaultFree: true},
			{ID: 11, Name: "paid", Level: 5, MaxDownloadThreads: 4},
		},
	)

	ledger := stor.NewInMemoryTransferLedgerStor()
	tc.broker = delivery.NewTokenBroker(stor.NewInMemoryDownloadTokenStor(), tc.accounts, false)

	tc.engine = delivery.NewEngine(delivery.EngineOpts{
		Files:      tc.files,
		Accounts:   tc.accounts,
		Stats:      stor.NewInMemoryStatStor(),
		Resolver:   delivery.NewStorageResolver(tc.servers, root),
		Admission:  delivery.NewAdmissionController(ledger),
		Tracker:    delivery.NewTransferTracker(ledger, true),
		Broker:     tc.broker,
		Accountant: delivery.NewBandwidthAccountant(tc.accounts),
	})

	apikeys := apimiddleware.NewAPIKeyCache(tc.accounts)
	tc.controller = NewDownloadController(tc.engine, tc.files, apikeys, "apikey")

	return tc
}

func (tc *webTestCase) download(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	ctx := tc.e.NewContext(req, rec)

	parts := strings.SplitN(strings.TrimPrefix(strings.SplitN(target, "?", 2)[0], "/"), "/", 2)
	ctx.SetParamNames("shortURL")
	ctx.SetParamValues(parts[0])

	err := tc.controller.Download(ctx)
	if err != nil {
		tc.e.HTTPErrorHandler(err, ctx)
	}

	return rec
}

func TestDownloadController_Download(t *testing.T) {
	t.Run("serves the file", func(t *testing.T) {
		tc := newWebTestCase(t)

		rec := tc.download(t, "/abc123")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, tc.payload, rec.Body.String())
		require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	})

	t.Run("inline flag drops the attachment disposition", func(t *testing.T) {
		tc := newWebTestCase(t)

		rec := tc.download(t, "/abc123?inline=1")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get("Content-Disposition"))
	})

	t.Run("unknown short url is 404", func(t *testing.T) {
		tc := newWebTestCase(t)

		rec := tc.download(t, "/nope")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad token is 403", func(t *testing.T) {
		tc := newWebTestCase(t)

		rec := tc.download(t, "/abc123?download_token=bogus")
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("issued token is honored", func(t *testing.T) {
		tc := newWebTestCase(t)

		token, err := tc.broker.Issue(tc.file, delivery.Anonymous, "", delivery.TokenOverrides{})
		require.NoError(t, err)

		rec := tc.download(t, "/abc123?download_token="+token)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, tc.payload, rec.Body.String())
	})
}

func TestTokenController_IssueToken(t *testing.T) {
	issue := func(t *testing.T, tc *webTestCase, body string) (*httptest.ResponseRecorder, error) {
		t.Helper()

		controller := NewTokenController(tc.broker, tc.files, tc.servers, tc.accounts)

		req := httptest.NewRequest(http.MethodPost, "/api/tokens", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		ctx := tc.e.NewContext(req, rec)
		ctx.Set("Account", model.Account{ID: 3, TierID: 11})

		return rec, controller.IssueToken(ctx)
	}

	t.Run("issues a token with a direct url", func(t *testing.T) {
		tc := newWebTestCase(t)

		rec, err := issue(t, tc, `{"short_url":"abc123"}`)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"token":"`)
		require.Contains(t, rec.Body.String(), "http://dl.example.net/abc123/report.pdf?download_token=")
	})

	t.Run("unknown file is 404", func(t *testing.T) {
		tc := newWebTestCase(t)

		_, err := issue(t, tc, `{"short_url":"nope"}`)
		require.ErrorIs(t, err, echo.ErrNotFound)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	tc := newWebTestCase(t)
	apikeys := apimiddleware.NewAPIKeyCache(tc.accounts)

	handler := apimiddleware.APIKeyAuth(apimiddleware.APIKeyConfig{
		Keyname:            "apikey",
		GetAccountByAPIKey: apikeys.GetAccountByAPIKey,
	})(func(c echo.Context) error {
		account := c.Get("Account").(model.Account)
		return c.String(http.StatusOK, fmt.Sprintf("account %d", account.ID))
	})

	t.Run("header key authenticates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
		req.Header.Set("apikey", "key-3")
		rec := httptest.NewRecorder()

		require.NoError(t, handler(tc.e.NewContext(req, rec)))
		require.Equal(t, "account 3", rec.Body.String())
	})

	t.Run("query key authenticates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tokens?apikey=key-3", nil)
		rec := httptest.NewRecorder()

		require.NoError(t, handler(tc.e.NewContext(req, rec)))
		require.Equal(t, "account 3", rec.Body.String())
	})

	t.Run("missing key is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
		rec := httptest.NewRecorder()

		err := handler(tc.e.NewContext(req, rec))
		require.Error(t, err)
	})

	t.Run("unknown key is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
		req.Header.Set("apikey", "wrong")
		rec := httptest.NewRecorder()

		err := handler(tc.e.NewContext(req, rec))
		require.ErrorIs(t, err, echo.ErrUnauthorized)
	})
}

func TestInternalFetcher_FetchToPath(t *testing.T) {
	newFetchFixture := func(t *testing.T, payload string) (*InternalFetcher, *model.File) {
		t.Helper()

		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("download_token") == "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(payload))
		}))
		t.Cleanup(upstream.Close)

		hash := sha256.Sum256([]byte(payload))
		file := &model.File{
			ID:               1,
			ShortURL:         "abc123",
			OriginalFilename: "report.pdf",
			Extension:        "pdf",
			Size:             int64(len(payload)),
			ServerID:         1,
			Status:           model.FileStatusActive,
			ContentHash:      fmt.Sprintf("%x", hash),
		}

		servers := stor.NewInMemoryStorageServerStor([]model.StorageServer{{
			ID:           1,
			Kind:         model.ServerKindLocal,
			DownloadHost: strings.TrimPrefix(upstream.URL, "http://"),
		}})

		accounts := stor.NewInMemoryAccountStor(nil, nil)
		broker := delivery.NewTokenBroker(stor.NewInMemoryDownloadTokenStor(), accounts, false)

		return NewInternalFetcher(broker, servers), file
	}

	t.Run("fetches and verifies", func(t *testing.T) {
		fetcher, file := newFetchFixture(t, "internal payload")
		dest := filepath.Join(t.TempDir(), "staged.bin")

		require.NoError(t, fetcher.FetchToPath(context.Background(), file, dest))

		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		require.Equal(t, "internal payload", string(got))
	})

	t.Run("hash mismatch removes the staged file", func(t *testing.T) {
		fetcher, file := newFetchFixture(t, "internal payload")
		file.ContentHash = strings.Repeat("0", 64)
		dest := filepath.Join(t.TempDir(), "staged.bin")

		err := fetcher.FetchToPath(context.Background(), file, dest)
		require.Error(t, err)
		require.Contains(t, err.Error(), "content hash mismatch")

		_, statErr := os.Stat(dest)
		require.True(t, os.IsNotExist(statErr))
	})

	t.Run("unknown server fails", func(t *testing.T) {
		fetcher, file := newFetchFixture(t, "internal payload")
		file.ServerID = 9

		err := fetcher.FetchToPath(context.Background(), file, filepath.Join(t.TempDir(), "x"))
		require.Error(t, err)
	})
}
