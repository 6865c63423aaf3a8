package domain

import (
	"fmt"
)

// Side selects the bid or ask collection of the book.
type Side uint8

const (
	SideBid Side = iota + 1
	SideAsk
)

// String returns the string representation of Side
func (s Side) String() string {
	switch s {
	case SideBid:
		return "BID"
	case SideAsk:
		return "ASK"
	default:
		return "UNKNOWN"
	}
}

// BookDelta describes one splice of an order collection: Removed is the
// contiguous run that used to start at Index, Inserted is the run that
// starts there now.
type BookDelta struct {
	Side     Side    `json:"side"`
	Index    int     `json:"index"`
	Removed  []Order `json:"removed"`
	Inserted []Order `json:"inserted"`
}

// OwnOrderBook mirrors the shared bid and ask collections and keeps the
// owner's requested/offered counters current without rescanning the book.
type OwnOrderBook struct {
	owner    string
	assets   []string
	bids     []Order
	asks     []Order
	counters CounterState
}

// NewOwnOrderBook creates an empty book for owner.
func NewOwnOrderBook(owner string, assets []string) *OwnOrderBook {
	return &OwnOrderBook{
		owner:    owner,
		assets:   append([]string(nil), assets...),
		counters: NewCounterState(assets),
	}
}

// Owner returns the trader this book aggregates for.
func (b *OwnOrderBook) Owner() string {
	return b.owner
}

// Reset replaces both collections wholesale and recomputes the counters.
func (b *OwnOrderBook) Reset(bids, asks []Order) {
	b.bids = append([]Order(nil), bids...)
	b.asks = append([]Order(nil), asks...)
	b.counters = Recompute(b.assets, b.owner, b.bids, b.asks)
}

// Splice removes removeCount orders at index from one side, inserts the given
// orders there, and returns the delta that was applied.
func (b *OwnOrderBook) Splice(side Side, index, removeCount int, inserted []Order) (BookDelta, error) {
	coll := b.collection(side)
	if coll == nil {
		return BookDelta{}, fmt.Errorf("splice: invalid side %d", side)
	}
	if index < 0 || removeCount < 0 || index+removeCount > len(*coll) {
		return BookDelta{}, &ConsistencyError{
			Kind:   FaultBookMismatch,
			Detail: fmt.Sprintf("%s splice [%d,+%d) out of range for %d orders", side, index, removeCount, len(*coll)),
		}
	}
	d := BookDelta{
		Side:     side,
		Index:    index,
		Removed:  append([]Order(nil), (*coll)[index:index+removeCount]...),
		Inserted: append([]Order(nil), inserted...),
	}
	return d, b.Apply(d)
}

// Apply applies a delta received from the market. The removed run must
// match the local collection order for order; otherwise nothing changes and
// a consistency fault is returned.
func (b *OwnOrderBook) Apply(d BookDelta) error {
	coll := b.collection(d.Side)
	if coll == nil {
		return fmt.Errorf("apply delta: invalid side %d", d.Side)
	}
	end := d.Index + len(d.Removed)
	if d.Index < 0 || end > len(*coll) {
		return &ConsistencyError{
			Kind:   FaultBookMismatch,
			Detail: fmt.Sprintf("%s delta [%d,%d) out of range for %d orders", d.Side, d.Index, end, len(*coll)),
		}
	}
	for i, o := range d.Removed {
		if (*coll)[d.Index+i].ID != o.ID {
			return &ConsistencyError{
				Kind:   FaultBookMismatch,
				Asset:  o.AssetName,
				Detail: fmt.Sprintf("%s delta removes %s at %d but book has %s", d.Side, o.ID, d.Index+i, (*coll)[d.Index+i].ID),
			}
		}
	}

	next := make([]Order, 0, len(*coll)-len(d.Removed)+len(d.Inserted))
	next = append(next, (*coll)[:d.Index]...)
	next = append(next, d.Inserted...)
	next = append(next, (*coll)[end:]...)
	*coll = next

	return b.counters.apply(b.owner, d)
}

// Counters returns a copy of the current counters.
func (b *OwnOrderBook) Counters() CounterState {
	return b.counters.Clone()
}

// Bids returns a copy of the bid collection.
func (b *OwnOrderBook) Bids() []Order {
	return append([]Order(nil), b.bids...)
}

// Asks returns a copy of the ask collection.
func (b *OwnOrderBook) Asks() []Order {
	return append([]Order(nil), b.asks...)
}

// Verify compares the incremental counters against a full recomputation.
func (b *OwnOrderBook) Verify() error {
	want := Recompute(b.assets, b.owner, b.bids, b.asks)
	if b.counters.Equal(want) {
		return nil
	}
	return &ConsistencyError{
		Kind:   FaultBookMismatch,
		Detail: fmt.Sprintf("%s: incremental counters %+v differ from recomputed %+v", b.Owner(), b.counters, want),
	}
}

func (b *OwnOrderBook) collection(side Side) *[]Order {
	switch side {
	case SideBid:
		return &b.bids
	case SideAsk:
		return &b.asks
	default:
		return nil
	}
}
