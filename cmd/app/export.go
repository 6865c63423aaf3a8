package main

import (
	"io"
	"os"

	"etf_cda/internal/app"
	"etf_cda/internal/report"

	"github.com/spf13/cobra"
)

const outFlagName = "out"

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String(outFlagName, "", "Write CSV to this file instead of stdout")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the trader's journaled trades of every round as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := cmd.Flags().GetString(configFlagName)
		if err != nil {
			return err
		}
		out, err := cmd.Flags().GetString(outFlagName)
		if err != nil {
			return err
		}

		bootstrap := app.NewBootstrap()
		if err := bootstrap.Initialize(configPath); err != nil {
			return err
		}
		defer bootstrap.Close()

		var w io.Writer = cmd.OutOrStdout()
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		cfg := bootstrap.Config
		return report.ExportRounds(cmd.Context(), w, bootstrap.Storage, cfg.Trader.ID, bootstrap.Market.NumRounds, bootstrap.ScalerForRound)
	},
}
