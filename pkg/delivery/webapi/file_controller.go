package webapi

import (
	"net/http"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/filehaven/filehaven/pkg/fhfile"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// FileController exposes the file lifecycle to the front application:
// trash, restore, hard delete, duplication and relocation. All routes
// sit behind the apikey middleware.
type FileController struct {
	files     stor.FileStor
	lifecycle *fhfile.LifecycleService
}

func NewFileController(files stor.FileStor, lifecycle *fhfile.LifecycleService) *FileController {
	return &FileController{files: files, lifecycle: lifecycle}
}

func (c *FileController) TrashFile(ctx echo.Context) error {
	var req struct {
		ShortURL string `json:"short_url"`
		ReasonID int    `json:"reason_id"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	file, err := c.files.GetFileByShortURL(req.ShortURL)
	if err != nil {
		return echo.ErrNotFound
	}

	if req.ReasonID == 0 {
		req.ReasonID = model.StatusReasonUser
	}

	if err := c.lifecycle.Trash(file, req.ReasonID); err != nil {
		return mapLifecycleError(err)
	}

	return ctx.JSON(http.StatusOK, file)
}

func (c *FileController) RestoreFile(ctx echo.Context) error {
	var req struct {
		ShortURL string `json:"short_url"`
		FolderID *int   `json:"folder_id"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	file, err := c.files.GetFileByShortURL(req.ShortURL)
	if err != nil {
		return echo.ErrNotFound
	}

	if err := c.lifecycle.Restore(file, req.FolderID); err != nil {
		return mapLifecycleError(err)
	}

	return ctx.JSON(http.StatusOK, file)
}

func (c *FileController) DeleteFile(ctx echo.Context) error {
	var req struct {
		ShortURL string `json:"short_url"`
		ReasonID int    `json:"reason_id"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	file, err := c.files.GetFileByShortURL(req.ShortURL)
	if err != nil {
		return echo.ErrNotFound
	}

	if req.ReasonID == 0 {
		req.ReasonID = model.StatusReasonUser
	}

	if err := c.lifecycle.Delete(file, req.ReasonID); err != nil {
		return mapLifecycleError(err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (c *FileController) DuplicateFile(ctx echo.Context) error {
	var req struct {
		ShortURL string `json:"short_url"`
		OwnerID  int    `json:"owner_id"`
		FolderID *int   `json:"folder_id"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	file, err := c.files.GetFileByShortURL(req.ShortURL)
	if err != nil {
		return echo.ErrNotFound
	}

	if req.OwnerID == 0 {
		account, ok := ctx.Get("Account").(model.Account)
		if !ok {
			return echo.ErrBadRequest
		}
		req.OwnerID = account.ID
	}

	dup, err := c.lifecycle.Duplicate(file, req.OwnerID, req.FolderID)
	if err != nil {
		return mapLifecycleError(err)
	}

	return ctx.JSON(http.StatusOK, dup)
}

func (c *FileController) RelocateFile(ctx echo.Context) error {
	var req struct {
		ShortURL    string `json:"short_url"`
		NewServerID int    `json:"new_server_id"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	file, err := c.files.GetFileByShortURL(req.ShortURL)
	if err != nil {
		return echo.ErrNotFound
	}

	if err := c.lifecycle.Relocate(file, req.NewServerID); err != nil {
		return mapLifecycleError(err)
	}

	return ctx.NoContent(http.StatusAccepted)
}

func mapLifecycleError(err error) error {
	switch {
	case errors.Is(err, fhfile.ErrNotActive),
		errors.Is(err, fhfile.ErrNotTrashed),
		errors.Is(err, fhfile.ErrAlreadyGone):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return err
	}
}
