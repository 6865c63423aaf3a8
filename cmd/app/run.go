package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"etf_cda/internal/app"
	"etf_cda/internal/domain"
	"etf_cda/internal/engine"
	"etf_cda/internal/execution"
	"etf_cda/internal/infra"
	"etf_cda/internal/infra/feed"
	"etf_cda/internal/service"

	_ "net/http/pprof" // For pprof profiling

	"github.com/spf13/cobra"
)

const (
	debugAddrFlagName = "debug-addr"
	ordersFlagName    = "orders"
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String(debugAddrFlagName, "localhost:6060", "Address of the pprof and /metrics server, empty to disable")
	runCmd.Flags().Bool(ordersFlagName, true, "Read \"bid|ask <asset> <price>\" order lines from stdin")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the market and track the trader's holdings",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := cmd.Flags().GetString(configFlagName)
		if err != nil {
			return err
		}
		debugAddr, err := cmd.Flags().GetString(debugAddrFlagName)
		if err != nil {
			return err
		}
		readOrders, err := cmd.Flags().GetBool(ordersFlagName)
		if err != nil {
			return err
		}
		return runSession(cmd.Context(), configPath, debugAddr, readOrders)
	},
}

func runSession(parent context.Context, configPath, debugAddr string, readOrders bool) error {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(configPath); err != nil {
		return err
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 2. Graceful Shutdown Context
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Debug server: pprof and metrics, localhost only by default
	if debugAddr != "" {
		metricsHandler, err := infra.MetricsHandler(infra.GlobalMetrics)
		if err != nil {
			return err
		}
		http.Handle("/metrics", metricsHandler)
		go func() {
			slog.Info("🕵️ Debug server started", slog.String("addr", debugAddr))
			if err := http.ListenAndServe(debugAddr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Debug server failed", slog.Any("error", err))
			}
		}()
	}

	// 4. Read model
	round := bootstrap.Market.Round
	tables := service.NewAssetTableService(round.AssetStructure, round.States, bootstrap.Scaler)
	tables.StartProcessor(ctx)

	// 5. Router -> Sequencer -> Feed
	router := engine.NewRouter(ctx, nil)
	worker := feed.NewWorker(cfg.Feed.WSURL, cfg.Feed.Token, cfg.Trader.ID, router)

	onTrade := func(t domain.Trade) {
		slog.Info("Trade",
			slog.String("asset", t.AssetName()),
			slog.String("label", service.TradeLabel(&t, cfg.Trader.ID, bootstrap.Scaler)),
		)
	}
	seq, err := bootstrap.NewSequencer(ctx, worker, tables.OnSnapshot, onTrade)
	if err != nil {
		return err
	}
	if err := router.Register(seq); err != nil {
		return err
	}
	slog.InfoContext(ctx, "✅ Sequencer started", slog.String("trader", cfg.Trader.ID))

	if cfg.Feed.WSURL != "" {
		if err := worker.Connect(ctx); err != nil {
			return err
		}
		defer worker.Disconnect()
		slog.InfoContext(ctx, "✅ Feed worker started", slog.String("url", cfg.Feed.WSURL))
	} else {
		slog.Warn("No feed url configured, running without market connection")
	}

	// 6. Order entry from stdin
	if readOrders {
		entry := execution.NewOrderEntry(worker, bootstrap.Scaler, bootstrap.Decomposition, round.AllowShort,
			func() domain.HoldingsState { return seq.Snapshot().Holdings })
		go func() {
			n, err := entry.ReadCommands(ctx, os.Stdin)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("Order input closed", slog.Any("error", err))
			}
			slog.Info("Order input finished", slog.Int("entered", n))
		}()
	}

	slog.InfoContext(ctx, "✨ Trader session operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	router.Wait()

	final := seq.Snapshot()
	tables.Apply(final)
	t := tables.Table()
	slog.Info("Final holdings",
		slog.Uint64("seq", final.LastSeq),
		slog.Bool("stale", final.Stale),
		slog.String("settled_cash", t.SettledCash),
		slog.Any("rows", t.Rows),
	)
	return nil
}
