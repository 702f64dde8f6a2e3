package webapi

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/filehaven/filehaven/pkg/delivery"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// internalFetchHashLimit caps content verification on internal fetches.
// Hashing multi-gigabyte payloads after every copy costs more than the
// corruption it would catch.
const internalFetchHashLimit int64 = 20 << 20

// InternalFetcher pulls a file's bytes from its storage server over the
// public download path, for server-to-server operations like thumbnail
// generation or relocation staging. It authenticates with a media token
// so the fetch is neither throttled nor post-processed.
type InternalFetcher struct {
	broker  *delivery.TokenBroker
	servers stor.StorageServerStor
	client  *resty.Client
}

func NewInternalFetcher(broker *delivery.TokenBroker, servers stor.StorageServerStor) *InternalFetcher {
	return &InternalFetcher{
		broker:  broker,
		servers: servers,
		client:  resty.New().SetTimeout(10 * time.Minute),
	}
}

// FetchToPath downloads file to destPath. Small payloads are verified
// against the file's content hash after the copy.
func (f *InternalFetcher) FetchToPath(ctx context.Context, file *model.File, destPath string) error {
	server, err := f.servers.GetServerByID(file.ServerID)
	if err != nil {
		return errors.Wrapf(err, "no storage server %d for file %d", file.ServerID, file.ID)
	}

	token, err := f.broker.IssueForMedia(file, delivery.Anonymous, "")
	if err != nil {
		return errors.Wrapf(err, "media token for file %d", file.ID)
	}

	scheme := "http"
	if server.UseSSL {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s/%s/%s?download_token=%s",
		scheme, server.DownloadHost, file.ShortURL, file.SafeFilenameForURL(), token)

	resp, err := f.client.R().
		SetContext(ctx).
		SetOutput(destPath).
		Get(url)
	if err != nil {
		return errors.Wrapf(err, "fetching file %d from %s", file.ID, server.DownloadHost)
	}
	if resp.IsError() {
		return fmt.Errorf("fetching file %d from %s: HTTP %d", file.ID, server.DownloadHost, resp.StatusCode())
	}

	if file.ContentHash != "" && file.Size < internalFetchHashLimit {
		if err := verifyContentHash(destPath, file.ContentHash); err != nil {
			_ = os.Remove(destPath)
			return errors.Wrapf(err, "file %d", file.ID)
		}
	}

	return nil
}

func verifyContentHash(path, want string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, in); err != nil {
		return err
	}

	got := fmt.Sprintf("%x", h.Sum(nil))
	if got != want {
		return fmt.Errorf("content hash mismatch: got %s want %s", got, want)
	}

	return nil
}
