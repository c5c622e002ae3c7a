package status

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"crm-sync/cmd/app"
	"crm-sync/internal/models"
	"crm-sync/pkg/log"
)

var StatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the synchronization status of every registered table",
	Example: `crm-sync status --config /path/to/config.yaml`,
	RunE:    runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	logger := log.Logger.With().Str("component", "status").Logger()

	wiring, err := app.Setup()
	if err != nil {
		return err
	}
	defer wiring.Close()

	store, err := wiring.InitSyncStatusRepository()
	if err != nil {
		return err
	}
	statuses, err := store.ListStatuses(cmd.Context())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list statuses")
		return err
	}

	now := time.Now().UTC()
	for i := range statuses {
		s := &statuses[i]
		event := logger.Info()
		if s.Status != models.StatusReady {
			event = logger.Warn()
		}
		event.
			Str("table", s.TableName).
			Str("status", s.Status.String()).
			Str("watermark", describeTime(s.Watermark, now)).
			Str("last_refresh", describeTime(s.LastRefresh, now)).
			Int("consecutive_failures", s.ConsecutiveFailures).
			Str("last_error", s.GetLastError()).
			Msg("Table status")
	}
	logger.Info().Int("tables", len(statuses)).Msg("Status listed")
	return nil
}

// describeTime renders a stored UTC timestamp with its age, e.g.
// "2024-01-02T00:00:01Z (3 hours ago)".
func describeTime(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	utc := t.UTC()
	return utc.Format(time.RFC3339) + " (" + humanize.RelTime(utc, now, "ago", "from now") + ")"
}
