package domain

import (
	"fmt"

	"etf_cda/pkg/safe"
)

// HoldingsState is one trader's cash and inventory.
// Available amounts exclude what the trader's own open orders encumber, so
// available may be lower than settled.
type HoldingsState struct {
	AvailableCash   int64            `json:"available_cash"`
	SettledCash     int64            `json:"settled_cash"`
	AvailableAssets map[string]int64 `json:"available_assets"`
	SettledAssets   map[string]int64 `json:"settled_assets"`
}

// NewHoldingsState creates a state where available equals settled.
func NewHoldingsState(cash int64, assets map[string]int64) HoldingsState {
	h := HoldingsState{
		AvailableCash:   cash,
		SettledCash:     cash,
		AvailableAssets: make(map[string]int64, len(assets)),
		SettledAssets:   make(map[string]int64, len(assets)),
	}
	for name, qty := range assets {
		h.AvailableAssets[name] = qty
		h.SettledAssets[name] = qty
	}
	return h
}

// Clone returns a deep copy.
func (h HoldingsState) Clone() HoldingsState {
	c := h
	c.AvailableAssets = make(map[string]int64, len(h.AvailableAssets))
	c.SettledAssets = make(map[string]int64, len(h.SettledAssets))
	for k, v := range h.AvailableAssets {
		c.AvailableAssets[k] = v
	}
	for k, v := range h.SettledAssets {
		c.SettledAssets[k] = v
	}
	return c
}

// Equal compares two states, treating a missing asset entry as zero.
func (h HoldingsState) Equal(o HoldingsState) bool {
	return h.AvailableCash == o.AvailableCash &&
		h.SettledCash == o.SettledCash &&
		sameCounts(h.AvailableAssets, o.AvailableAssets) &&
		sameCounts(h.SettledAssets, o.SettledAssets)
}

func sameCounts(a, b map[string]int64) bool {
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	for k, v := range b {
		if a[k] != v {
			return false
		}
	}
	return true
}

// HoldingsLedger applies trade settlements and order lifecycle changes to a
// single trader's HoldingsState. It is not safe for concurrent use; the
// owning sequencer serializes all calls.
type HoldingsLedger struct {
	etf   *Decomposition
	state HoldingsState
}

// NewHoldingsLedger creates a ledger starting from initial.
func NewHoldingsLedger(etf *Decomposition, initial HoldingsState) *HoldingsLedger {
	return &HoldingsLedger{etf: etf, state: initial.Clone()}
}

// State returns a copy of the current holdings.
func (l *HoldingsLedger) State() HoldingsState {
	return l.state.Clone()
}

// Restore replaces the current holdings, e.g. after a resync.
func (l *HoldingsLedger) Restore(h HoldingsState) {
	l.state = h.Clone()
}

// ApplyTrade records one settled trade leg.
// For a composite asset the quantity change is applied to each component,
// scaled by its weight, and the composite's own slot is left untouched.
// Cash always moves by price*volume.
func (l *HoldingsLedger) ApplyTrade(price, volume int64, isBid bool, asset string) error {
	if !l.etf.Known(asset) {
		return &ConsistencyError{Kind: FaultUnknownAsset, Asset: asset, Detail: "trade for asset outside the asset structure"}
	}

	sign := int64(1)
	if !isBid {
		sign = -1
	}

	if weights := l.etf.WeightsOf(asset); weights != nil {
		for component, weight := range weights {
			delta := safe.Mul(sign, safe.Mul(volume, weight))
			l.adjust(l.state.AvailableAssets, component, delta)
			l.adjust(l.state.SettledAssets, component, delta)
		}
	} else {
		delta := safe.Mul(sign, volume)
		l.adjust(l.state.AvailableAssets, asset, delta)
		l.adjust(l.state.SettledAssets, asset, delta)
	}

	cash := safe.Mul(-sign, safe.Mul(price, volume))
	l.state.AvailableCash = safe.Add(l.state.AvailableCash, cash)
	l.state.SettledCash = safe.Add(l.state.SettledCash, cash)
	return nil
}

// ApplyOrderAvailabilityChange updates available balances when one of the
// trader's own orders enters (removed=false) or leaves (removed=true) the
// book without trading. Settled balances never change here.
//
// A bid encumbers price*volume of cash. A plain ask encumbers volume of the
// asset. A composite ask encumbers volume*weight of each component.
func (l *HoldingsLedger) ApplyOrderAvailabilityChange(o Order, removed bool) error {
	if !l.etf.Known(o.AssetName) {
		return &ConsistencyError{Kind: FaultUnknownAsset, Asset: o.AssetName, Detail: fmt.Sprintf("order %s for asset outside the asset structure", o.ID)}
	}

	sign := int64(-1)
	if removed {
		sign = 1
	}

	if o.IsBid {
		l.state.AvailableCash = safe.Add(l.state.AvailableCash, safe.Mul(sign, safe.Mul(o.Price, o.Volume)))
		return nil
	}

	weights := l.etf.WeightsOf(o.AssetName)
	if weights == nil {
		l.adjust(l.state.AvailableAssets, o.AssetName, safe.Mul(sign, o.Volume))
		return nil
	}
	for component, weight := range weights {
		l.adjust(l.state.AvailableAssets, component, safe.Mul(sign, safe.Mul(o.Volume, weight)))
	}
	return nil
}

func (l *HoldingsLedger) adjust(m map[string]int64, asset string, delta int64) {
	m[asset] = safe.Add(m[asset], delta)
}

// VerifyInvariant checks that no composite asset carries its own inventory.
func (l *HoldingsLedger) VerifyInvariant() error {
	for _, m := range []map[string]int64{l.state.AvailableAssets, l.state.SettledAssets} {
		for asset, qty := range m {
			if qty != 0 && l.etf.IsComposite(asset) {
				return &ConsistencyError{Kind: FaultCompositeSlot, Asset: asset, Detail: fmt.Sprintf("composite asset holds inventory %d", qty)}
			}
		}
	}
	return nil
}
