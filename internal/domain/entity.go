package domain

import (
	"strings"
	"time"
)

// TradeRecord is one trade the trader took part in, as kept in the journal.
type TradeRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	Trader    string `gorm:"index:idx_trade_round,priority:1" json:"trader"`
	Round     int    `gorm:"index:idx_trade_round,priority:2" json:"round_number"`
	GroupID   int    `json:"group_id"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	AssetName string `json:"asset_name"`
	Price     int64  `json:"price"`
	Volume    int64  `json:"volume"`
	MakerIDs  string `json:"maker_ids"` // comma separated
	TakerID   string `json:"taker_id"`
	Side      string `json:"side"` // B, S or BS
	CreatedAt time.Time
}

// NewTradeRecord builds the journal row of trade as seen by trader.
func NewTradeRecord(trader string, round, groupID int, seq uint64, t *Trade) *TradeRecord {
	makers := make([]string, 0, len(t.MakingOrders))
	var volume int64
	for _, o := range t.MakingOrders {
		makers = append(makers, o.OwnerID)
		volume += o.Volume
	}
	return &TradeRecord{
		Trader:    trader,
		Round:     round,
		GroupID:   groupID,
		Seq:       seq,
		Timestamp: t.Timestamp,
		AssetName: t.AssetName(),
		Price:     t.Price(),
		Volume:    volume,
		MakerIDs:  strings.Join(makers, ","),
		TakerID:   t.TakingOrder.OwnerID,
		Side:      t.SideIndicator(trader),
	}
}

// Makers splits MakerIDs.
func (r *TradeRecord) Makers() []string {
	if r.MakerIDs == "" {
		return nil
	}
	return strings.Split(r.MakerIDs, ",")
}

// Checkpoint is the last consistent state of a trader's ledger in a round.
type Checkpoint struct {
	Trader    string    `gorm:"primaryKey" json:"trader"`
	Round     int       `gorm:"primaryKey;autoIncrement:false" json:"round_number"`
	LastSeq   uint64    `json:"last_seq"`
	Holdings  string    `json:"holdings"` // JSON encoded HoldingsState
	UpdatedAt time.Time `json:"updated_at"`
}
