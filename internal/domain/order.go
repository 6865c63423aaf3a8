package domain

// Order is a resting or incoming limit order.
// Price is in scaled integer units; within a Trade, Volume is the quantity
// that order contributed to the match.
type Order struct {
	ID        string `json:"id"`
	AssetName string `json:"asset_name"`
	IsBid     bool   `json:"is_bid"`
	Price     int64  `json:"price"`
	Volume    int64  `json:"volume"`
	OwnerID   string `json:"pcode"`
}

// Trade is a match between one taking order and one or more making orders.
type Trade struct {
	Timestamp    int64   `json:"timestamp"`
	MakingOrders []Order `json:"making_orders"`
	TakingOrder  Order   `json:"taking_order"`
}

// Price returns the settlement price: the price of the first making order.
func (t *Trade) Price() int64 {
	if len(t.MakingOrders) == 0 {
		return t.TakingOrder.Price
	}
	return t.MakingOrders[0].Price
}

// AssetName returns the traded asset.
func (t *Trade) AssetName() string {
	return t.TakingOrder.AssetName
}

// Leg is one trader's side of a settled trade.
type Leg struct {
	Price     int64  `json:"price"`
	Volume    int64  `json:"volume"`
	IsBid     bool   `json:"is_bid"`
	AssetName string `json:"asset_name"`
}

// LegsFor returns the legs owned by owner, making orders first. A trader on
// both sides of a trade gets one leg per order.
func (t *Trade) LegsFor(owner string) []Leg {
	price := t.Price()
	var legs []Leg
	for _, o := range t.MakingOrders {
		if o.OwnerID == owner {
			legs = append(legs, Leg{Price: price, Volume: o.Volume, IsBid: o.IsBid, AssetName: o.AssetName})
		}
	}
	if t.TakingOrder.OwnerID == owner {
		o := t.TakingOrder
		legs = append(legs, Leg{Price: price, Volume: o.Volume, IsBid: o.IsBid, AssetName: o.AssetName})
	}
	return legs
}

// SideIndicator returns "B" if owner bought in this trade, "S" if they sold,
// "BS" if both, and "" otherwise.
func (t *Trade) SideIndicator(owner string) string {
	var bought, sold bool
	check := func(o Order) {
		if o.OwnerID != owner {
			return
		}
		if o.IsBid {
			bought = true
		} else {
			sold = true
		}
	}
	for _, o := range t.MakingOrders {
		check(o)
	}
	check(t.TakingOrder)

	switch {
	case bought && sold:
		return "BS"
	case bought:
		return "B"
	case sold:
		return "S"
	default:
		return ""
	}
}

// OrderRequest is a new order handed to the order-submission collaborator.
type OrderRequest struct {
	ID        string `json:"id"`
	Price     int64  `json:"price"`
	Volume    int64  `json:"volume"`
	IsBid     bool   `json:"is_bid"`
	AssetName string `json:"asset_name"`
}
