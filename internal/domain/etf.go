package domain

// Decomposition maps a composite asset to its component weights.
// Built once from an AssetStructure and never mutated afterwards.
type Decomposition struct {
	known   map[string]bool
	weights map[string]map[string]int64
}

// NewDecomposition validates the ETF section of as and indexes it.
func NewDecomposition(as AssetStructure) (*Decomposition, error) {
	if err := as.Validate(nil); err != nil {
		return nil, err
	}
	d := &Decomposition{
		known:   make(map[string]bool, len(as)),
		weights: make(map[string]map[string]int64),
	}
	for name, spec := range as {
		d.known[name] = true
		if !spec.IsETF {
			continue
		}
		w := make(map[string]int64, len(spec.ETFWeights))
		for component, weight := range spec.ETFWeights {
			w[component] = weight
		}
		d.weights[name] = w
	}
	return d, nil
}

// WeightsOf returns {component -> unit weight} for a composite asset, or nil
// for a plain or unknown asset. The returned map must not be modified.
func (d *Decomposition) WeightsOf(asset string) map[string]int64 {
	return d.weights[asset]
}

// IsComposite reports whether asset is an ETF.
func (d *Decomposition) IsComposite(asset string) bool {
	_, ok := d.weights[asset]
	return ok
}

// Known reports whether asset is part of the market's asset structure.
func (d *Decomposition) Known(asset string) bool {
	return d.known[asset]
}
