package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finward/opsflow/internal/common"
)

var rootCmd = &cobra.Command{
	Use:   "opsflow",
	Short: "Run bookkeeping automation jobs defined in a runbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	// Defaults
	v := viper.GetViper()
	v.SetDefault("config", "./config/config.yaml")
	v.SetDefault("addr", ":8080")

	// Environment variables support: OPSFLOW_CONFIG, ...
	v.SetEnvPrefix("OPSFLOW")
	v.AutomaticEnv()

	rootCmd.PersistentFlags().String("config", v.GetString("config"), "path to the opsflow config yaml")
	serveCmd.Flags().String("addr", v.GetString("addr"), "listen address for the API server")

	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadConfig reads the configured config file and installs logging.
func loadConfig() (*ConfigDoc, error) {
	var doc ConfigDoc
	if err := doc.Load(viper.GetString("config")); err != nil {
		return nil, err
	}
	doc.SetupLogging()
	return &doc, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		common.LogError("command execution failed", err)
		os.Exit(1)
	}
}
