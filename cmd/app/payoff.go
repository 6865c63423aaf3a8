package main

import (
	"fmt"
	"math/rand"
	"time"

	"etf_cda/internal/app"

	"github.com/spf13/cobra"
)

const (
	stateFlagName = "state"
	seedFlagName  = "seed"
)

func init() {
	rootCmd.AddCommand(payoffCmd)
	payoffCmd.Flags().String(stateFlagName, "", "Realized state; drawn by probability weight when empty")
	payoffCmd.Flags().Int64(seedFlagName, 0, "Seed for the state draw, 0 for time based")
}

var payoffCmd = &cobra.Command{
	Use:   "payoff",
	Short: "Compute the round payoff of the last checkpointed holdings",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := cmd.Flags().GetString(configFlagName)
		if err != nil {
			return err
		}
		state, err := cmd.Flags().GetString(stateFlagName)
		if err != nil {
			return err
		}
		seed, err := cmd.Flags().GetInt64(seedFlagName)
		if err != nil {
			return err
		}

		bootstrap := app.NewBootstrap()
		if err := bootstrap.Initialize(configPath); err != nil {
			return err
		}
		defer bootstrap.Close()

		cfg := bootstrap.Config
		round := bootstrap.Market.Round

		holdings := bootstrap.Initial
		_, h, ok, err := bootstrap.Storage.LoadCheckpoint(cmd.Context(), cfg.Trader.ID, cfg.Market.Round)
		if err != nil {
			return err
		}
		if ok {
			holdings = h
		}

		if state == "" {
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			if state, err = round.States.Draw(rand.New(rand.NewSource(seed))); err != nil {
				return err
			}
		} else if _, known := round.States[state]; !known {
			return fmt.Errorf("unknown state %q", state)
		}

		payoff := round.AssetStructure.Payoff(holdings.SettledAssets, state)
		fmt.Fprintf(cmd.OutOrStdout(), "state=%s probability=%s payoff=%d\n",
			state, round.States.ProbabilityLabel(state), payoff)
		return nil
	},
}
