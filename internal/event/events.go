package event

import (
	"etf_cda/internal/domain"
)

// Type defines the type of event.
type Type uint16

const (
	EvSettlement Type = iota + 1
	EvTrade
	EvOrderAvailability
	EvBookDelta
	EvBookReset
	EvResync
)

// String returns the wire name of the event type.
func (t Type) String() string {
	switch t {
	case EvSettlement:
		return "settlement"
	case EvTrade:
		return "trade"
	case EvOrderAvailability:
		return "order_availability"
	case EvBookDelta:
		return "book_delta"
	case EvBookReset:
		return "book_reset"
	case EvResync:
		return "resync"
	default:
		return "unknown"
	}
}

// Event is the interface for all sequencer events.
// Seq is per trader and starts at 1.
type Event interface {
	GetSeq() uint64
	GetTs() int64
	GetType() Type
	GetTrader() string
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq    uint64 `json:"seq"`
	Ts     int64  `json:"ts"`
	Trader string `json:"trader"`
}

func (e BaseEvent) GetSeq() uint64    { return e.Seq }
func (e BaseEvent) GetTs() int64      { return e.Ts }
func (e BaseEvent) GetTrader() string { return e.Trader }

// SettlementEvent is one already-expanded trade leg for the trader.
type SettlementEvent struct {
	BaseEvent
	domain.Leg
}

func (e SettlementEvent) GetType() Type { return EvSettlement }

// TradeEvent carries a whole trade; the sequencer settles the trader's own legs.
type TradeEvent struct {
	BaseEvent
	Trade domain.Trade `json:"trade"`
}

func (e TradeEvent) GetType() Type { return EvTrade }

// OrderAvailabilityEvent reports one of the trader's own orders entering
// (Removed=false) or leaving (Removed=true) the book.
type OrderAvailabilityEvent struct {
	BaseEvent
	Order   domain.Order `json:"order"`
	Removed bool         `json:"removed"`
}

func (e OrderAvailabilityEvent) GetType() Type { return EvOrderAvailability }

// BookDeltaEvent is a splice of the shared bid or ask collection.
type BookDeltaEvent struct {
	BaseEvent
	Delta domain.BookDelta `json:"delta"`
}

func (e BookDeltaEvent) GetType() Type { return EvBookDelta }

// BookResetEvent replaces both collections wholesale.
type BookResetEvent struct {
	BaseEvent
	Bids []domain.Order `json:"bids"`
	Asks []domain.Order `json:"asks"`
}

func (e BookResetEvent) GetType() Type { return EvBookReset }

// ResyncEvent is a full snapshot from the market. It is accepted at any
// sequence number and restarts sequencing after it.
type ResyncEvent struct {
	BaseEvent
	Holdings domain.HoldingsState `json:"holdings"`
	Bids     []domain.Order       `json:"bids"`
	Asks     []domain.Order       `json:"asks"`
}

func (e ResyncEvent) GetType() Type { return EvResync }
