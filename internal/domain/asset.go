package domain

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Endowment is an initial amount that is either shared by every trader in a
// group or given per trader (indexed by id in group, starting at 1).
type Endowment struct {
	Shared    int64
	PerTrader []int64
}

// UnmarshalYAML accepts either a scalar or a sequence of integers.
func (e *Endowment) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v int64
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("endowment: %w", err)
		}
		*e = Endowment{Shared: v}
	case yaml.SequenceNode:
		var vs []int64
		if err := node.Decode(&vs); err != nil {
			return fmt.Errorf("endowment list: %w", err)
		}
		*e = Endowment{PerTrader: vs}
	default:
		return fmt.Errorf("endowment must be an integer or a list, line %d", node.Line)
	}
	return nil
}

// MarshalYAML writes the endowment back in the form it was read.
func (e Endowment) MarshalYAML() (interface{}, error) {
	if e.PerTrader != nil {
		return e.PerTrader, nil
	}
	return e.Shared, nil
}

// For returns the endowment of the trader with the given 1-based id in group.
func (e Endowment) For(idInGroup int) (int64, error) {
	if e.PerTrader == nil {
		return e.Shared, nil
	}
	if idInGroup < 1 || idInGroup > len(e.PerTrader) {
		return 0, fmt.Errorf("no endowment for trader %d (have %d)", idInGroup, len(e.PerTrader))
	}
	return e.PerTrader[idInGroup-1], nil
}

// AssetSpec describes one tradable asset.
type AssetSpec struct {
	IsETF      bool             `yaml:"is_etf" json:"is_etf"`
	Payoffs    map[string]int64 `yaml:"payoffs,omitempty" json:"payoffs,omitempty"`
	ETFWeights map[string]int64 `yaml:"etf_weights,omitempty" json:"etf_weights,omitempty"`
	Endowment  Endowment        `yaml:"endowment" json:"-"`
}

// AssetStructure maps asset name to its spec. Shared, read-only market config.
type AssetStructure map[string]AssetSpec

// Names returns asset names in sorted order.
func (as AssetStructure) Names() []string {
	names := make([]string, 0, len(as))
	for name := range as {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every ETF resolves to known non-ETF components with
// positive weights, and that every plain asset has a payoff for each state.
func (as AssetStructure) Validate(states []string) error {
	if len(as) == 0 {
		return &ConfigError{Field: "asset_structure", Err: fmt.Errorf("no assets configured")}
	}
	for _, name := range as.Names() {
		spec := as[name]
		field := "asset_structure." + name
		if !spec.IsETF {
			for _, st := range states {
				if _, ok := spec.Payoffs[st]; !ok {
					return &ConfigError{Field: field + ".payoffs", Err: fmt.Errorf("missing payoff for state %q", st)}
				}
			}
			continue
		}
		if len(spec.ETFWeights) == 0 {
			return &ConfigError{Field: field + ".etf_weights", Err: fmt.Errorf("composite asset has no components")}
		}
		for component, weight := range spec.ETFWeights {
			cs, ok := as[component]
			if !ok {
				return &ConfigError{Field: field + ".etf_weights", Err: fmt.Errorf("%w: %s", ErrUnknownAsset, component)}
			}
			if cs.IsETF {
				return &ConfigError{Field: field + ".etf_weights", Err: fmt.Errorf("%w: %s", ErrNestedETF, component)}
			}
			if weight <= 0 {
				return &ConfigError{Field: field + ".etf_weights", Err: fmt.Errorf("weight of %s must be positive, got %d", component, weight)}
			}
		}
	}
	return nil
}

// State is one possible realized state of the world at the end of a round.
type State struct {
	ProbWeight int64 `yaml:"prob_weight" json:"prob_weight"`
}
