package domain

import (
	"fmt"
	"sort"
)

// CounterState holds, per asset, how many live bids (Requested) and asks
// (Offered) the trader owns in the shared book.
type CounterState struct {
	Requested map[string]int64 `json:"requested"`
	Offered   map[string]int64 `json:"offered"`
}

// NewCounterState creates zeroed counters for every asset.
func NewCounterState(assets []string) CounterState {
	c := CounterState{
		Requested: make(map[string]int64, len(assets)),
		Offered:   make(map[string]int64, len(assets)),
	}
	for _, a := range assets {
		c.Requested[a] = 0
		c.Offered[a] = 0
	}
	return c
}

// Clone returns a deep copy.
func (c CounterState) Clone() CounterState {
	n := CounterState{
		Requested: make(map[string]int64, len(c.Requested)),
		Offered:   make(map[string]int64, len(c.Offered)),
	}
	for k, v := range c.Requested {
		n.Requested[k] = v
	}
	for k, v := range c.Offered {
		n.Offered[k] = v
	}
	return n
}

// Equal compares counters, treating a missing asset as zero.
func (c CounterState) Equal(o CounterState) bool {
	return sameCounts(c.Requested, o.Requested) && sameCounts(c.Offered, o.Offered)
}

// Recompute derives counters from scratch by filtering owner's orders.
func Recompute(assets []string, owner string, bids, asks []Order) CounterState {
	c := NewCounterState(assets)
	for _, o := range bids {
		if o.OwnerID == owner {
			c.Requested[o.AssetName]++
		}
	}
	for _, o := range asks {
		if o.OwnerID == owner {
			c.Offered[o.AssetName]++
		}
	}
	return c
}

// ApplyDelta returns prev advanced by one book delta. prev is not modified.
// A counter that ends up negative is kept as is and reported as a
// *ConsistencyError.
func ApplyDelta(prev CounterState, owner string, d BookDelta) (CounterState, error) {
	next := prev.Clone()
	err := next.apply(owner, d)
	return next, err
}

// apply mutates c in place. Work is proportional to the delta size.
func (c *CounterState) apply(owner string, d BookDelta) error {
	target := c.Requested
	if d.Side == SideAsk {
		target = c.Offered
	}

	touched := make(map[string]struct{})
	for _, o := range d.Removed {
		if o.OwnerID == owner {
			target[o.AssetName]--
			touched[o.AssetName] = struct{}{}
		}
	}
	for _, o := range d.Inserted {
		if o.OwnerID == owner {
			target[o.AssetName]++
		}
	}

	var negative []string
	for asset := range touched {
		if target[asset] < 0 {
			negative = append(negative, asset)
		}
	}
	if len(negative) == 0 {
		return nil
	}
	sort.Strings(negative)
	return &ConsistencyError{
		Kind:   FaultNegativeCounter,
		Asset:  negative[0],
		Detail: fmt.Sprintf("%s counter = %d after delta at index %d (negative assets: %v)", d.Side, target[negative[0]], d.Index, negative),
	}
}
