package webapi

import (
	"net/http"

	"github.com/filehaven/filehaven/pkg/clog"
	"github.com/filehaven/filehaven/pkg/delivery"
	"github.com/filehaven/filehaven/pkg/delivery/webapi/apimiddleware"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// DownloadController serves the public download endpoints. Anonymous
// requests are allowed; an apikey or download token binds the transfer
// to an account.
type DownloadController struct {
	engine  *delivery.Engine
	files   stor.FileStor
	apikeys *apimiddleware.APIKeyCache
	keyname string
}

func NewDownloadController(engine *delivery.Engine, files stor.FileStor, apikeys *apimiddleware.APIKeyCache, keyname string) *DownloadController {
	return &DownloadController{
		engine:  engine,
		files:   files,
		apikeys: apikeys,
		keyname: keyname,
	}
}

// Download handles GET /:shortURL and GET /:shortURL/:filename. The
// filename segment is cosmetic, there for download managers and saved
// links; only the short url selects the file.
func (c *DownloadController) Download(ctx echo.Context) error {
	file, err := c.files.GetActiveFileByShortURL(ctx.Param("shortURL"))
	if err != nil {
		return echo.ErrNotFound
	}

	req := delivery.Request{
		File:        file,
		RangeHeader: ctx.Request().Header.Get("Range"),
		IPAddress:   ctx.RealIP(),
		Token:       ctx.QueryParam("download_token"),
		Session:     c.sessionIdentity(ctx),
		Attachment:  ctx.QueryParam("inline") == "",
		RunHooks:    true,
	}

	result, err := c.engine.Download(ctx.Request().Context(), req, newEchoSink(ctx))
	if err != nil {
		return mapDeliveryError(ctx, file.ID, err)
	}

	clog.ForTransfer(clog.DeliveryCtx, file.ID, req.IPAddress).
		WithField("bytes", result.BytesSent).
		WithField("state", int(result.State)).
		Info("transfer finished")

	return nil
}

// sessionIdentity resolves the optional apikey on the request. Missing or
// unknown keys mean an anonymous download, never a rejection.
func (c *DownloadController) sessionIdentity(ctx echo.Context) delivery.Identity {
	apikey := ctx.Request().Header.Get(c.keyname)
	if apikey == "" {
		apikey = ctx.QueryParam(c.keyname)
	}
	if apikey == "" {
		return delivery.Anonymous
	}

	account, err := c.apikeys.GetAccountByAPIKey(apikey)
	if err != nil {
		return delivery.Anonymous
	}

	return delivery.Identity{AccountID: account.ID, TierID: account.TierID, LoggedIn: true}
}

// mapDeliveryError translates engine errors into HTTP statuses. Errors
// after the status line has been written can only be logged.
func mapDeliveryError(ctx echo.Context, fileID int, err error) error {
	switch {
	case errors.Is(err, delivery.ErrAdmissionDenied):
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many simultaneous downloads")
	case errors.Is(err, delivery.ErrTokenExpired):
		return echo.NewHTTPError(http.StatusForbidden, "download token expired")
	case errors.Is(err, delivery.ErrTokenInvalid):
		return echo.NewHTTPError(http.StatusForbidden, "download token not valid")
	case errors.Is(err, delivery.ErrBackendUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage backend unavailable")
	case errors.Is(err, delivery.ErrTransferIO):
		clog.ForTransfer(clog.DeliveryCtx, fileID, ctx.RealIP()).
			WithError(err).Info("transfer aborted mid-stream")
		return nil
	default:
		return err
	}
}
