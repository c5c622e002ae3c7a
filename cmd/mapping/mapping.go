package mapping

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"crm-sync/cmd/app"
	"crm-sync/internal/tabledesc"
	"crm-sync/pkg/log"
)

var minimalFlag bool

var MappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage the field mapping files of mirrored tables",
}

var initCmd = &cobra.Command{
	Use:   "init <table>",
	Short: "Write an initial mapping file from the remote table description",
	Long: `Write <mapping_dir>/<table>.csv listing every remote field with its import flag.
An existing mapping file is never overwritten.`,
	Example: `crm-sync mapping init Account
  crm-sync mapping init Account --minimal`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&minimalFlag, "minimal", false,
		"import only the fields needed to track changes")
	MappingCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	table := args[0]
	logger := log.Logger.With().Str("component", "mapping-init").Str("table", table).Logger()

	wiring, err := app.Setup()
	if err != nil {
		return err
	}
	defer wiring.Close()

	client, err := wiring.InitSalesforceClient()
	if err != nil {
		return err
	}

	path := tabledesc.NewDirMappingSource(wiring.GetConfig().MappingDir).Path(table)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create mapping directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("Refusing to write mapping file")
		return err
	}

	err = tabledesc.GenerateMapping(cmd.Context(), client, table, minimalFlag, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		logger.Error().Err(err).Msg("Failed to generate mapping file")
		return err
	}
	logger.Info().Str("path", path).Bool("minimal", minimalFlag).Msg("Mapping file written")
	return nil
}
