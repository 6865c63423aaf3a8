package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const configFlagName = "config"

var rootCmd = &cobra.Command{
	Use:          "etf-cda",
	Short:        "Trader session client for an ETF continuous double auction",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String(configFlagName, "configs/config.yaml", "Path to the session config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("❌ Command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
