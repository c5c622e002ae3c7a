package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"crm-sync/cmd/app"
	"crm-sync/internal/extract"
	"crm-sync/pkg/log"
)

var (
	includeDeletedFlag bool
	countFlag          bool
)

var QueryCmd = &cobra.Command{
	Use:   "query <soql>",
	Short: "Run a remote query and print the records as JSON lines",
	Example: `crm-sync query "SELECT Id, Name FROM Account LIMIT 10"
  crm-sync query --count "SELECT COUNT() FROM Account WHERE SystemModstamp > 2024-01-01T00:00:00Z"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	QueryCmd.Flags().BoolVar(&includeDeletedFlag, "include-deleted", false, "also return soft-deleted rows")
	QueryCmd.Flags().BoolVar(&countFlag, "count", false, "print only the total size of the result")
}

func runQuery(cmd *cobra.Command, args []string) error {
	wiring, err := app.Setup()
	if err != nil {
		return err
	}
	defer wiring.Close()

	client, err := wiring.InitSalesforceClient()
	if err != nil {
		return err
	}
	if err := printQuery(cmd.Context(), client, args[0], includeDeletedFlag, countFlag, cmd.OutOrStdout()); err != nil {
		log.Logger.Error().Err(err).Str("component", "query").Msg("Query failed")
		return err
	}
	return nil
}

// printQuery writes every record of every page to w, one JSON object per line, or only
// the total size when count is set.
func printQuery(ctx context.Context, querier extract.Querier, soql string, includeDeleted, count bool, w io.Writer) error {
	result, err := querier.Query(ctx, soql, includeDeleted)
	if err != nil {
		return err
	}
	if count {
		_, err := fmt.Fprintln(w, result.TotalSize)
		return err
	}

	enc := json.NewEncoder(w)
	for {
		for _, record := range result.Records {
			if err := enc.Encode(record); err != nil {
				return err
			}
		}
		if result.Done || result.NextRecordsURL == "" {
			return nil
		}
		result, err = querier.QueryMore(ctx, result.NextRecordsURL, includeDeleted)
		if err != nil {
			return err
		}
	}
}
