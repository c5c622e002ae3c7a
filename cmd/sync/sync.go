package sync

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"crm-sync/cmd/app"
	"crm-sync/pkg/log"
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize remote tables into their PostgreSQL mirrors",
	Long:  `Synchronize remote CRM tables into their PostgreSQL mirrors with various execution modes.`,
}

var onceCmd = &cobra.Command{
	Use:   "once [tables...]",
	Short: "Run one synchronization pass and exit",
	Long: `Synchronize the given tables, or every configured table, once and exit. Names may be
glob patterns such as "*__c", matched against the registered tables.`,
	Example: `crm-sync sync once --config /path/to/config.yaml Account Contact`,
	RunE:    runOnce,
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Short:   "Run synchronization passes on the configured interval",
	Long:    `Synchronize every configured table immediately and then every interval seconds until stopped.`,
	Example: `crm-sync sync daemon --config /path/to/config.yaml`,
	RunE:    runDaemon,
}

var dryRunCmd = &cobra.Command{
	Use:     "dry-run [tables...]",
	Short:   "Show what would be synced without actually syncing",
	Long:    `Show the remote query and the number of pending changes of each table, without taking locks.`,
	Example: `crm-sync sync dry-run --config /path/to/config.yaml`,
	RunE:    runDryRun,
}

func init() {
	SyncCmd.AddCommand(onceCmd)
	SyncCmd.AddCommand(daemonCmd)
	SyncCmd.AddCommand(dryRunCmd)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := log.Logger.With().Str("component", "sync-once").Logger()

	wiring, err := app.Setup()
	if err != nil {
		return err
	}
	defer wiring.Close()

	tables, err := app.SelectTables(cmd.Context(), wiring, args)
	if err != nil {
		return err
	}

	orchestrator, err := wiring.InitOrchestrator()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	logger.Info().Strs("tables", tables).Msg("Starting one-time crm-sync")
	if _, err := orchestrator.SyncTables(ctx, tables); err != nil {
		logger.Error().Err(err).Msg("Error during sync")
		return err
	}
	logger.Info().Msg("One-time sync completed successfully")
	return nil
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	logger := log.Logger.With().Str("component", "sync-daemon").Logger()

	wiring, err := app.Setup()
	if err != nil {
		return err
	}
	defer wiring.Close()

	interval, err := wiring.GetConfig().DaemonInterval()
	if err != nil {
		return err
	}

	tables, err := app.SelectTables(cmd.Context(), wiring, nil)
	if err != nil {
		return err
	}

	orchestrator, err := wiring.InitOrchestrator()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	logger.Info().Strs("tables", tables).Msg("Starting crm-sync daemon")
	return orchestrator.RunDaemon(ctx, tables, interval)
}

func runDryRun(cmd *cobra.Command, args []string) error {
	logger := log.Logger.With().Str("component", "sync-dry-run").Logger()

	wiring, err := app.Setup()
	if err != nil {
		return err
	}
	defer wiring.Close()

	tables, err := app.SelectTables(cmd.Context(), wiring, args)
	if err != nil {
		return err
	}

	orchestrator, err := wiring.InitOrchestrator()
	if err != nil {
		return err
	}

	logger.Info().Msg("=== DRY RUN: Tables that would be synced ===")

	var errs []error
	total := 0
	for _, table := range tables {
		result, err := orchestrator.DryRun(cmd.Context(), table)
		if err != nil {
			logger.Error().Err(err).Str("table", table).Msg("Dry run failed")
			errs = append(errs, err)
			continue
		}
		total += result.Pending
		logger.Info().
			Str("table", table).
			Time("watermark", result.Watermark).
			Int("pending", result.Pending).
			Str("query", result.Query).
			Msg(" → Would sync")
	}

	logger.Info().Int("total_pending", total).Msg("=== DRY RUN COMPLETE ===")
	return errors.Join(errs...)
}
