package domain

import (
	"fmt"
	"math/rand"
	"sort"

	"etf_cda/pkg/safe"
)

// AssetValue returns what one unit of asset pays in state. A composite pays
// the weighted sum of its components.
func (as AssetStructure) AssetValue(asset, state string) int64 {
	spec, ok := as[asset]
	if !ok {
		return 0
	}
	if !spec.IsETF {
		return spec.Payoffs[state]
	}
	var v int64
	for component, weight := range spec.ETFWeights {
		v = safe.Add(v, safe.Mul(as[component].Payoffs[state], weight))
	}
	return v
}

// Payoff values settled holdings in the realized state. Cash is not part of
// the payoff.
func (as AssetStructure) Payoff(settled map[string]int64, state string) int64 {
	var total int64
	for asset, qty := range settled {
		total = safe.Add(total, safe.Mul(as.AssetValue(asset, state), qty))
	}
	return total
}

// InitialHoldings builds the opening HoldingsState of trader idInGroup.
// An endowment of a composite asset is credited to its components.
func (as AssetStructure) InitialHoldings(cash Endowment, idInGroup int) (HoldingsState, error) {
	c, err := cash.For(idInGroup)
	if err != nil {
		return HoldingsState{}, &ConfigError{Field: "cash_endowment", Err: err}
	}
	assets := make(map[string]int64, len(as))
	for _, name := range as.Names() {
		spec := as[name]
		qty, err := spec.Endowment.For(idInGroup)
		if err != nil {
			return HoldingsState{}, &ConfigError{Field: "asset_structure." + name + ".endowment", Err: err}
		}
		if !spec.IsETF {
			assets[name] = safe.Add(assets[name], qty)
			continue
		}
		for component, weight := range spec.ETFWeights {
			assets[component] = safe.Add(assets[component], safe.Mul(qty, weight))
		}
	}
	return NewHoldingsState(c, assets), nil
}

// States is the set of possible realized states with their draw weights.
type States map[string]State

// Names returns state names in sorted order.
func (s States) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s States) totalWeight() int64 {
	var total int64
	for _, st := range s {
		total = safe.Add(total, st.ProbWeight)
	}
	return total
}

// Draw picks a realized state with probability proportional to its weight.
func (s States) Draw(rng *rand.Rand) (string, error) {
	total := s.totalWeight()
	if total <= 0 {
		return "", fmt.Errorf("cannot draw a state: total probability weight is %d", total)
	}
	r := rng.Int63n(total)
	for _, name := range s.Names() {
		r -= s[name].ProbWeight
		if r < 0 {
			return name, nil
		}
	}
	// unreachable while weights are non-negative
	return "", fmt.Errorf("state draw fell through with total weight %d", total)
}

// ProbabilityLabel renders the probability of state as a reduced fraction,
// "0" or "1".
func (s States) ProbabilityLabel(state string) string {
	num := s[state].ProbWeight
	denom := s.totalWeight()
	if num == 0 {
		return "0"
	}
	if num == denom {
		return "1"
	}
	g := safe.GCD(num, denom)
	return fmt.Sprintf("%d/%d", num/g, denom/g)
}
