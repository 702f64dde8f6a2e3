package cmd

import (
	"github.com/filehaven/filehaven/pkg/delivery"
	"github.com/filehaven/filehaven/pkg/delivery/webapi"
	"github.com/filehaven/filehaven/pkg/delivery/webapi/apimiddleware"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/filehaven/filehaven/pkg/fhfile"
	"github.com/labstack/echo/v4"
)

type RouteOpts struct {
	engine       *delivery.Engine
	broker       *delivery.TokenBroker
	lifecycle    *fhfile.LifecycleService
	stors        *stor.Stors
	apikeyHeader string
}

func setupRoutes(e *echo.Echo, opts RouteOpts) {
	apikeys := apimiddleware.NewAPIKeyCache(opts.stors.AccountStor)

	downloadController := webapi.NewDownloadController(opts.engine, opts.stors.FileStor, apikeys, opts.apikeyHeader)
	e.GET("/:shortURL", downloadController.Download)
	e.GET("/:shortURL/:filename", downloadController.Download)

	g := e.Group("/api")
	g.Use(apimiddleware.APIKeyAuth(apimiddleware.APIKeyConfig{
		Keyname:            opts.apikeyHeader,
		GetAccountByAPIKey: apikeys.GetAccountByAPIKey,
	}))

	tokenController := webapi.NewTokenController(opts.broker, opts.stors.FileStor,
		opts.stors.StorageServerStor, opts.stors.AccountStor)
	g.POST("/tokens", tokenController.IssueToken)

	fileController := webapi.NewFileController(opts.stors.FileStor, opts.lifecycle)
	g.POST("/files/trash", fileController.TrashFile)
	g.POST("/files/restore", fileController.RestoreFile)
	g.POST("/files/delete", fileController.DeleteFile)
	g.POST("/files/duplicate", fileController.DuplicateFile)
	g.POST("/files/relocate", fileController.RelocateFile)
}
