/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/apex/log"
	"github.com/filehaven/filehaven/pkg/clog"
	"github.com/filehaven/filehaven/pkg/config"
	"github.com/filehaven/filehaven/pkg/delivery"
	"github.com/filehaven/filehaven/pkg/fhdb"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/filehaven/filehaven/pkg/fhfile"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fhdeliverd",
	Short: "Run the file delivery server",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Use(middleware.Recover())

		c := config.MustLoadFromFHDotenv()
		if err := clog.SetGlobalLoggerLevelFromString(c.GetKeyWithDefault("FH_LOG_LEVEL", "info")); err != nil {
			log.Fatalf("Bad FH_LOG_LEVEL: %s", err)
		}

		db := fhdb.MustConnectToDB()
		stors := stor.NewGormStors(db)

		localRoot := c.MustGetKey("FH_LOCAL_STORAGE_ROOT")
		log.Infof("Local storage root: %s", localRoot)

		resolver := delivery.NewStorageResolver(stors.StorageServerStor, localRoot)
		admission := delivery.NewAdmissionController(stors.TransferLedgerStor)
		tracker := delivery.NewTransferTracker(stors.TransferLedgerStor,
			c.GetBoolKeyWithDefault("FH_TRACK_TRANSFERS", true))
		broker := delivery.NewTokenBroker(stors.DownloadTokenStor, stors.AccountStor,
			c.GetBoolKeyWithDefault("FH_TOKEN_LOCK_IP", false))
		accountant := delivery.NewBandwidthAccountant(stors.AccountStor)

		engine := delivery.NewEngine(delivery.EngineOpts{
			Files:      stors.FileStor,
			Accounts:   stors.AccountStor,
			Stats:      stors.StatStor,
			Resolver:   resolver,
			Admission:  admission,
			Tracker:    tracker,
			Broker:     broker,
			Accountant: accountant,
			Origin:     c.GetKeyWithDefault("FH_SITE_ORIGIN", "*"),
		})

		lifecycle := fhfile.NewLifecycleService(stors.FileStor, stors.FileActionStor,
			stors.StatStor, stors.TransferLedgerStor, stors.StorageServerStor)

		setupRoutes(e, RouteOpts{
			engine:       engine,
			broker:       broker,
			lifecycle:    lifecycle,
			stors:        stors,
			apikeyHeader: c.GetKeyWithDefault("FH_APIKEY_NAME", "apikey"),
		})

		if err := e.Start(":" + c.GetKeyWithDefault("FH_DELIVERD_PORT", "1480")); err != nil {
			log.Fatalf("Unable to start server: %v", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
