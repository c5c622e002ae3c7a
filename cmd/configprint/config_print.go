package configprint

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"crm-sync/internal/config"
	"crm-sync/pkg/log"
)

var (
	sectionFlag string
	formatFlag  string
)

//nolint:gochecknoglobals
var sections = []string{"id", "log_level", "interval", "concurrency", "tables", "mapping_dir", "postgres", "salesforce", "sync"}

var ConfigPrintCmd = &cobra.Command{
	Use:   "config-print",
	Short: "Print the current configuration",
	Long: `Print the loaded configuration or a specific section of it, with secrets masked.
Supports YAML and JSON output formats.`,
	Example: `  # Print entire config
  crm-sync config-print

  # Print specific section
  crm-sync config-print --section postgres
  crm-sync config-print --section salesforce

  # Print in YAML format
  crm-sync config-print --section sync --format yaml`,
	RunE: run,
}

func init() {
	ConfigPrintCmd.Flags().StringVarP(&sectionFlag, "section", "s", "",
		"print only a specific section ("+strings.Join(sections, ", ")+")")
	ConfigPrintCmd.Flags().StringVarP(&formatFlag, "format", "f", "json",
		"output format (yaml|json)")
}

func run(cmd *cobra.Command, _ []string) error {
	logger := log.Logger.With().Str("component", "config_print").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	output, err := getSection(cfg.Redacted(), sectionFlag)
	if err != nil {
		logger.Error().Err(err).Str("section", sectionFlag).Msg("Invalid section")
		return err
	}
	return write(cmd.OutOrStdout(), output, formatFlag)
}

func getSection(cfg config.Config, section string) (any, error) {
	switch section {
	case "":
		return cfg, nil
	case "id":
		return map[string]string{"id": cfg.ID}, nil
	case "log_level":
		return map[string]string{"log_level": cfg.LogLevel}, nil
	case "interval":
		return map[string]int{"interval": cfg.Interval}, nil
	case "concurrency":
		return map[string]int{"concurrency": cfg.Concurrency}, nil
	case "tables":
		return map[string][]string{"tables": cfg.Tables}, nil
	case "mapping_dir":
		return map[string]string{"mapping_dir": cfg.MappingDir}, nil
	case "postgres":
		return cfg.Postgres, nil
	case "salesforce":
		return cfg.Salesforce, nil
	case "sync":
		return cfg.Sync, nil
	default:
		return nil, fmt.Errorf("unknown section: %s (valid: %s)", section, strings.Join(sections, ", "))
	}
}

func write(w io.Writer, data any, format string) error {
	switch format {
	case "yaml":
		return yaml.NewEncoder(w).Encode(data)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}
