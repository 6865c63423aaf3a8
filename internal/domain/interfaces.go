package domain

import (
	"context"
)

// FeedWorker is a market connection that delivers events and accepts orders.
type FeedWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// OrderSubmitter hands new orders to the market.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, req OrderRequest) error
}

// TradeJournal persists the trades a trader took part in.
type TradeJournal interface {
	RecordTrade(ctx context.Context, rec *TradeRecord) error
	ListTrades(ctx context.Context, trader string, round int) ([]TradeRecord, error)
}

// CheckpointStore keeps the last consistent holdings of a trader.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, trader string, round int, seq uint64, h HoldingsState) error
	LoadCheckpoint(ctx context.Context, trader string, round int) (uint64, HoldingsState, bool, error)
}
