// Package admin holds the commands that change a table's status by hand.
package admin

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crm-sync/cmd/app"
	"crm-sync/internal/models"
	"crm-sync/internal/repository"
	"crm-sync/pkg/log"
)

var (
	forceFlag bool
	sinceFlag string
)

var AbortCmd = &cobra.Command{
	Use:   "abort <table>",
	Short: "Mark a running table as failed",
	Long: `Move a table from running to error so that no further run picks it up until it is reset.
Stopping the process that holds the table is left to the operator.`,
	Example: `crm-sync abort Account
  crm-sync abort Account --force`,
	Args: cobra.ExactArgs(1),
	RunE: runAbort,
}

var ResetCmd = &cobra.Command{
	Use:     "reset <table>",
	Short:   "Return a failed table to ready and clear its failure counter",
	Example: `crm-sync reset Account`,
	Args:    cobra.ExactArgs(1),
	RunE:    runReset,
}

var RegisterCmd = &cobra.Command{
	Use:   "register <table>",
	Short: "Register a mirrored table after its initial load",
	Long: `Create the status row of a table whose mirror was loaded up to --since. Registering an
already registered table leaves it untouched.`,
	Example: `crm-sync register Account --since 2024-01-01T00:00:00Z`,
	Args:    cobra.ExactArgs(1),
	RunE:    runRegister,
}

func init() {
	AbortCmd.Flags().BoolVar(&forceFlag, "force", false, "set error whatever the current status")
	RegisterCmd.Flags().StringVar(&sinceFlag, "since", "", "watermark of the initial load (RFC3339)")
	_ = RegisterCmd.MarkFlagRequired("since")
}

// abortOptions requires the table to be running unless force is set.
func abortOptions(force bool) repository.TransitionOptions {
	opts := repository.TransitionOptions{RecordFailure: "aborted by operator"}
	if !force {
		opts.RequireStatus = models.StatusRunning
	}
	return opts
}

func resetOptions() repository.TransitionOptions {
	return repository.TransitionOptions{RequireStatus: models.StatusError, ResetFailures: true}
}

func parseSince(value string) (time.Time, error) {
	since, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", value, err)
	}
	return since.UTC(), nil
}

func runAbort(cmd *cobra.Command, args []string) error {
	return transition(cmd, args[0], models.StatusError, abortOptions(forceFlag))
}

func runReset(cmd *cobra.Command, args []string) error {
	return transition(cmd, args[0], models.StatusReady, resetOptions())
}

func transition(cmd *cobra.Command, table string, next models.Status, opts repository.TransitionOptions) error {
	logger := log.Logger.With().Str("component", "admin").Str("table", table).Logger()

	wiring, err := app.Setup()
	if err != nil {
		return err
	}
	defer wiring.Close()

	store, err := wiring.InitSyncStatusRepository()
	if err != nil {
		return err
	}
	status, err := store.Transition(cmd.Context(), table, next, opts)
	if err != nil {
		logger.Error().Err(err).Str("to", next.String()).Msg("Status change rejected")
		return err
	}
	logger.Info().Str("status", status.Status.String()).Msg("Status changed")
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	table := args[0]
	logger := log.Logger.With().Str("component", "admin").Str("table", table).Logger()

	since, err := parseSince(sinceFlag)
	if err != nil {
		return err
	}

	wiring, err := app.Setup()
	if err != nil {
		return err
	}
	defer wiring.Close()

	store, err := wiring.InitSyncStatusRepository()
	if err != nil {
		return err
	}
	status, err := store.Register(cmd.Context(), table, since)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register table")
		return err
	}
	logger.Info().
		Str("status", status.Status.String()).
		Time("watermark", status.WatermarkUTC()).
		Msg("Table registered")
	return nil
}
