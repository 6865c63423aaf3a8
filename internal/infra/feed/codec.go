package feed

import (
	"encoding/json"
	"fmt"

	"etf_cda/internal/domain"
	"etf_cda/internal/event"
)

// envelope is the frame every market message arrives in.
type envelope struct {
	Type    string          `json:"type"`
	Seq     uint64          `json:"seq"`
	Ts      int64           `json:"ts"`
	Trader  string          `json:"trader"`
	Payload json.RawMessage `json:"payload"`
}

// outbound is the frame of messages sent to the market.
type outbound struct {
	Type    string      `json:"type"`
	Trader  string      `json:"trader,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

const (
	msgEnterOrder    = "enter_order"
	msgResyncRequest = "resync_request"
)

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// Decode parses one market message into an event. Messages of types this
// client does not consume return (nil, nil).
func Decode(msg []byte) (event.Event, error) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, malformed("envelope: %v", err)
	}
	if env.Type == "" {
		return nil, malformed("missing type")
	}

	base := event.BaseEvent{Seq: env.Seq, Ts: env.Ts, Trader: env.Trader}
	var ev event.Event
	var err error

	switch env.Type {
	case event.EvSettlement.String():
		e := &event.SettlementEvent{BaseEvent: base}
		if err = decodePayload(env.Payload, &e.Leg); err == nil {
			err = validateLeg(e.Leg)
		}
		ev = e
	case event.EvTrade.String():
		e := &event.TradeEvent{BaseEvent: base}
		if err = decodePayload(env.Payload, &e.Trade); err == nil {
			err = validateTrade(&e.Trade)
		}
		ev = e
	case event.EvOrderAvailability.String():
		e := &event.OrderAvailabilityEvent{BaseEvent: base}
		if err = decodePayload(env.Payload, e); err == nil {
			err = validateOrder(e.Order)
		}
		ev = e
	case event.EvBookDelta.String():
		e := &event.BookDeltaEvent{BaseEvent: base}
		if err = decodePayload(env.Payload, &e.Delta); err == nil {
			err = validateDelta(e.Delta)
		}
		ev = e
	case event.EvBookReset.String():
		e := &event.BookResetEvent{BaseEvent: base}
		if err = decodePayload(env.Payload, e); err == nil {
			err = validateOrders(e.Bids, e.Asks)
		}
		ev = e
	case event.EvResync.String():
		e := &event.ResyncEvent{BaseEvent: base}
		if err = decodePayload(env.Payload, e); err == nil {
			err = validateOrders(e.Bids, e.Asks)
		}
		ev = e
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if env.Seq == 0 {
		return nil, malformed("%s: seq must start at 1", env.Type)
	}
	if env.Trader == "" {
		return nil, malformed("%s: missing trader", env.Type)
	}
	return ev, nil
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return malformed("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return malformed("payload: %v", err)
	}
	return nil
}

func validateLeg(l domain.Leg) error {
	if l.AssetName == "" {
		return malformed("leg without asset")
	}
	if l.Volume <= 0 || l.Price < 0 {
		return malformed("leg %s: price %d volume %d", l.AssetName, l.Price, l.Volume)
	}
	return nil
}

func validateOrder(o domain.Order) error {
	if o.ID == "" || o.AssetName == "" {
		return malformed("order without id or asset")
	}
	if o.Volume <= 0 || o.Price < 0 {
		return malformed("order %s: price %d volume %d", o.ID, o.Price, o.Volume)
	}
	return nil
}

func validateOrders(lists ...[]domain.Order) error {
	for _, list := range lists {
		for _, o := range list {
			if err := validateOrder(o); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateTrade(t *domain.Trade) error {
	if len(t.MakingOrders) == 0 {
		return malformed("trade without making orders")
	}
	if err := validateOrder(t.TakingOrder); err != nil {
		return err
	}
	return validateOrders(t.MakingOrders)
}

func validateDelta(d domain.BookDelta) error {
	if d.Side != domain.SideBid && d.Side != domain.SideAsk {
		return malformed("delta side %d", d.Side)
	}
	if d.Index < 0 {
		return malformed("delta index %d", d.Index)
	}
	return validateOrders(d.Removed, d.Inserted)
}

// EncodeOrder frames an order request for the market.
func EncodeOrder(trader string, req domain.OrderRequest) ([]byte, error) {
	return json.Marshal(outbound{Type: msgEnterOrder, Trader: trader, Payload: req})
}

// EncodeResyncRequest frames a request for a full snapshot.
func EncodeResyncRequest(trader string) ([]byte, error) {
	return json.Marshal(outbound{Type: msgResyncRequest, Trader: trader})
}
