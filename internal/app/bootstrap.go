package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"etf_cda/internal/domain"
	"etf_cda/internal/engine"
	"etf_cda/internal/infra"
	"etf_cda/internal/infra/storage"
	"etf_cda/pkg/currency"

	"github.com/joho/godotenv"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config        *infra.Config
	Storage       *storage.Storage
	MarketConfigs *infra.MarketConfigManager
	Market        *infra.MarketConfig
	Scaler        currency.Scaler
	Decomposition *domain.Decomposition
	Initial       domain.HoldingsState
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, sets up logging and storage, and resolves
// the configured round. Every failure here is fatal.
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	// 2. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 3. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping ETF CDA trader session...", slog.String("trader", cfg.Trader.ID))

	// 4. Market configuration
	if err := b.loadRound(); err != nil {
		return err
	}
	slog.Info("✅ Round configured",
		slog.Int("round", cfg.Market.Round),
		slog.Int("num_rounds", b.Market.NumRounds),
		slog.Int64("currency_scale", b.Scaler.Factor()),
	)

	// 5. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Trade journal initialized")

	return nil
}

func (b *Bootstrap) loadRound() error {
	cfg := b.Config
	b.MarketConfigs = infra.NewMarketConfigManager(cfg.Market.RoundConfigDir)
	mc, err := b.MarketConfigs.Get(cfg.Market.SessionConfig, cfg.Market.Round)
	if err != nil {
		return err
	}
	if mc.Round == nil {
		return &domain.ConfigError{
			Field: "market.round",
			Err:   fmt.Errorf("round %d is past the end of the session (%d rounds)", cfg.Market.Round, mc.NumRounds),
		}
	}
	b.Market = mc

	if b.Scaler, err = mc.Round.Scaler(); err != nil {
		return &domain.ConfigError{Field: "currency_scale", Err: err}
	}
	if b.Decomposition, err = domain.NewDecomposition(mc.Round.AssetStructure); err != nil {
		return err
	}
	if b.Initial, err = mc.Round.AssetStructure.InitialHoldings(mc.Round.CashEndowment, cfg.Trader.IDInGroup); err != nil {
		return err
	}
	return nil
}

// ScalerForRound returns the currency scaler of another round of the session.
func (b *Bootstrap) ScalerForRound(round int) (currency.Scaler, error) {
	mc, err := b.MarketConfigs.Get(b.Config.Market.SessionConfig, round)
	if err != nil {
		return currency.Scaler{}, err
	}
	if mc.Round == nil {
		return currency.Scaler{}, fmt.Errorf("round %d is not configured", round)
	}
	return mc.Round.Scaler()
}

// NewSequencer builds the trader's sequencer from the configured round,
// resuming from the last checkpoint when one exists.
func (b *Bootstrap) NewSequencer(ctx context.Context, resync engine.ResyncRequester, onUpdate func(engine.Snapshot), onTrade func(domain.Trade)) (*engine.Sequencer, error) {
	cfg := b.Config
	ledger := domain.NewHoldingsLedger(b.Decomposition, b.Initial)
	book := domain.NewOwnOrderBook(cfg.Trader.ID, b.Market.Round.AssetStructure.Names())

	seq := engine.NewSequencer(engine.Options{
		Trader:       cfg.Trader.ID,
		Round:        cfg.Market.Round,
		GroupID:      cfg.Market.GroupID,
		InboxSize:    cfg.Feed.InboxSize,
		VerifyCounts: cfg.Feed.VerifyCounts,
		Journal:      b.Storage,
		Checkpoints:  b.Storage,
		Resync:       resync,
		Metrics:      infra.GlobalMetrics,
		OnUpdate:     onUpdate,
		OnTrade:      onTrade,
	}, ledger, book)

	lastSeq, h, ok, err := b.Storage.LoadCheckpoint(ctx, cfg.Trader.ID, cfg.Market.Round)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if ok {
		seq.ResumeFrom(lastSeq, h)
		slog.Info("✅ Resumed from checkpoint, awaiting book resync", slog.Uint64("seq", lastSeq))
	}
	return seq, nil
}

// Close releases resources opened by Initialize.
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close storage", slog.Any("error", err))
		}
	}
}
