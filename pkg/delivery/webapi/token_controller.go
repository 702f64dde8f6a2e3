package webapi

import (
	"fmt"
	"net/http"

	"github.com/filehaven/filehaven/pkg/delivery"
	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/labstack/echo/v4"
)

// TokenController issues download tokens on behalf of the front
// application. Routes using it sit behind the apikey middleware; the
// authenticated account is the token's owner unless the request names
// another account explicitly.
type TokenController struct {
	broker   *delivery.TokenBroker
	files    stor.FileStor
	servers  stor.StorageServerStor
	accounts stor.AccountStor
}

func NewTokenController(broker *delivery.TokenBroker, files stor.FileStor, servers stor.StorageServerStor, accounts stor.AccountStor) *TokenController {
	return &TokenController{broker: broker, files: files, servers: servers, accounts: accounts}
}

type issueTokenRequest struct {
	ShortURL     string `json:"short_url"`
	AccountID    *int   `json:"account_id"`
	IPAddress    string `json:"ip_address"`
	SpeedLimit   *int64 `json:"speed_limit"`
	MaxThreads   *int   `json:"max_threads"`
	Attachment   *bool  `json:"attachment"`
	ProcessHooks *bool  `json:"process_hooks"`
	Media        bool   `json:"media"`
}

type issueTokenResponse struct {
	Token       string `json:"token"`
	DownloadURL string `json:"download_url"`
}

// IssueToken handles POST /api/tokens, producing a token plus a ready to
// use direct download URL on the file's storage server.
func (c *TokenController) IssueToken(ctx echo.Context) error {
	var req issueTokenRequest

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	file, err := c.files.GetActiveFileByShortURL(req.ShortURL)
	if err != nil {
		return echo.ErrNotFound
	}

	identity := c.tokenIdentity(ctx, req.AccountID)

	var token string
	if req.Media {
		token, err = c.broker.IssueForMedia(file, identity, req.IPAddress)
	} else {
		token, err = c.broker.Issue(file, identity, req.IPAddress, delivery.TokenOverrides{
			SpeedLimit:   req.SpeedLimit,
			MaxThreads:   req.MaxThreads,
			Attachment:   req.Attachment,
			ProcessHooks: req.ProcessHooks,
		})
	}
	if err != nil {
		return err
	}

	url, err := c.directURL(file, token)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, issueTokenResponse{Token: token, DownloadURL: url})
}

// tokenIdentity picks the account the token binds to: an explicit
// account id in the request wins, otherwise the calling account.
func (c *TokenController) tokenIdentity(ctx echo.Context, explicit *int) delivery.Identity {
	if explicit != nil {
		account, err := c.accounts.GetAccountByID(*explicit)
		if err != nil {
			return delivery.Anonymous
		}
		return delivery.Identity{AccountID: account.ID, TierID: account.TierID, LoggedIn: true}
	}

	account, ok := ctx.Get("Account").(model.Account)
	if !ok {
		return delivery.Anonymous
	}

	return delivery.Identity{AccountID: account.ID, TierID: account.TierID, LoggedIn: true}
}

// directURL builds the canonical download URL for a file on its storage
// server's download host.
func (c *TokenController) directURL(file *model.File, token string) (string, error) {
	server, err := c.servers.GetServerByID(file.ServerID)
	if err != nil {
		return "", err
	}

	scheme := "http"
	if server.UseSSL {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s/%s/%s?download_token=%s",
		scheme, server.DownloadHost, file.ShortURL, file.SafeFilenameForURL(), token), nil
}
