/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/filehaven/filehaven/pkg/clog"
	"github.com/filehaven/filehaven/pkg/config"
	"github.com/filehaven/filehaven/pkg/delivery"
	"github.com/filehaven/filehaven/pkg/fhdb"
	"github.com/filehaven/filehaven/pkg/fhdb/stor"
	"github.com/filehaven/filehaven/pkg/fhqueue"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fhqueued",
	Short: "Run the background queue worker",
	Long: `fhqueued drains the file action queue (payload removals after hard
deletes, payload moves between storage servers), purges expired download
tokens, reaps timed-out transfer ledger rows, and periodically scans
local storage servers for orphaned payloads.`,
	Run: func(cmd *cobra.Command, args []string) {
		c := config.MustLoadFromFHDotenv()
		if err := clog.SetGlobalLoggerLevelFromString(c.GetKeyWithDefault("FH_LOG_LEVEL", "info")); err != nil {
			log.Fatalf("Bad FH_LOG_LEVEL: %s", err)
		}

		db := fhdb.MustConnectToDB()
		stors := stor.NewGormStors(db)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		worker := fhqueue.NewActionWorker(stors.FileStor, stors.FileActionStor,
			stors.StorageServerStor, c.GetIntKeyWithDefault("FH_QUEUE_CONCURRENCY", 4))
		go worker.Run(ctx)

		broker := delivery.NewTokenBroker(stors.DownloadTokenStor, stors.AccountStor,
			c.GetBoolKeyWithDefault("FH_TOKEN_LOCK_IP", false))
		tracker := delivery.NewTransferTracker(stors.TransferLedgerStor,
			c.GetBoolKeyWithDefault("FH_TRACK_TRANSFERS", true))
		go fhqueue.NewSweeper(broker, tracker).Run(ctx)

		if c.GetBoolKeyWithDefault("FH_ORPHAN_SCAN", false) {
			go runOrphanScans(ctx, stors,
				c.GetIntKeyWithDefault("FH_ORPHAN_SCAN_HOURS", 24),
				c.GetBoolKeyWithDefault("FH_ORPHAN_SCAN_DRY_RUN", true))
		}

		<-ctx.Done()
		log.Info("shutting down")
	},
}

// runOrphanScans walks every local storage server's payload tree on a
// fixed schedule.
func runOrphanScans(ctx context.Context, stors *stor.Stors, everyHours int, dryRun bool) {
	scanner := fhqueue.NewOrphanScanner(stors.FileStor)
	scanner.DryRun = dryRun

	ticker := time.NewTicker(time.Duration(everyHours) * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			servers, err := stors.StorageServerStor.ListServers()
			if err != nil {
				log.WithError(err).Error("cannot list storage servers for orphan scan")
				continue
			}

			for i := range servers {
				found, err := scanner.Scan(ctx, &servers[i])
				if err != nil {
					log.WithError(err).Errorf("orphan scan failed on server %d", servers[i].ID)
					continue
				}
				if found != 0 {
					log.Infof("orphan scan found %d stray payloads on server %d", found, servers[i].ID)
				}
			}
		}
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
