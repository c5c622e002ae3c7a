package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"crm-sync/cmd/admin"
	"crm-sync/cmd/configprint"
	"crm-sync/cmd/mapping"
	"crm-sync/cmd/query"
	"crm-sync/cmd/status"
	"crm-sync/cmd/sync"
	"crm-sync/cmd/version"
)

var cfgFile string

const (
	CFG_FLAG_NAME = "config"
)

var RootCmd = &cobra.Command{
	Use:   "crm-sync",
	Short: "crm-sync keeps PostgreSQL mirrors of CRM tables up to date",
	Long: `crm-sync incrementally copies the rows of remote CRM tables that changed since the last
run into local PostgreSQL mirror tables, and tracks a per-table watermark and lock in the
sync_status table.`,
	SilenceUsage: true,
}

func SetVersionInfo(v, c, d, b string) {
	version.SetVersionInfo(v, c, d, b)
}

func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVarP(&cfgFile, CFG_FLAG_NAME, "c", "", "path to config file")
	_ = viper.BindPFlag(CFG_FLAG_NAME, RootCmd.PersistentFlags().Lookup(CFG_FLAG_NAME))

	RootCmd.AddCommand(sync.SyncCmd)
	RootCmd.AddCommand(status.StatusCmd)
	RootCmd.AddCommand(admin.AbortCmd)
	RootCmd.AddCommand(admin.ResetCmd)
	RootCmd.AddCommand(admin.RegisterCmd)
	RootCmd.AddCommand(mapping.MappingCmd)
	RootCmd.AddCommand(query.QueryCmd)
	RootCmd.AddCommand(version.VersionCmd)
	RootCmd.AddCommand(configprint.ConfigPrintCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")               // For running from project root
		viper.AddConfigPath("/etc/crm-sync/")  // For production
		viper.AddConfigPath("$HOME/.crm-sync") // For user-specific config
	}
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("crm_sync")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}
