package feed

import (
	"encoding/json"
	"errors"
	"testing"

	"etf_cda/internal/domain"
	"etf_cda/internal/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Events(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want event.Type
	}{
		{"settlement", `{"type":"settlement","seq":1,"trader":"p1","payload":{"price":100,"volume":2,"is_bid":true,"asset_name":"X"}}`, event.EvSettlement},
		{"trade", `{"type":"trade","seq":2,"trader":"p1","payload":{"timestamp":5,"making_orders":[{"id":"m","asset_name":"X","price":10,"volume":1,"pcode":"p2"}],"taking_order":{"id":"t","asset_name":"X","is_bid":true,"price":12,"volume":1,"pcode":"p1"}}}`, event.EvTrade},
		{"availability", `{"type":"order_availability","seq":3,"trader":"p1","payload":{"order":{"id":"o","asset_name":"ETF","price":10,"volume":1},"removed":true}}`, event.EvOrderAvailability},
		{"delta", `{"type":"book_delta","seq":4,"trader":"p1","payload":{"side":2,"index":0,"removed":[],"inserted":[{"id":"a","asset_name":"Y","price":5,"volume":1,"pcode":"p1"}]}}`, event.EvBookDelta},
		{"reset", `{"type":"book_reset","seq":5,"trader":"p1","payload":{"bids":[],"asks":[]}}`, event.EvBookReset},
		{"resync", `{"type":"resync","seq":9,"trader":"p1","payload":{"holdings":{"available_cash":10,"settled_cash":10,"available_assets":{"X":1},"settled_assets":{"X":1}},"bids":[],"asks":[]}}`, event.EvResync},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.msg))
			require.NoError(t, err)
			require.NotNil(t, ev)
			assert.Equal(t, tt.want, ev.GetType())
			assert.Equal(t, "p1", ev.GetTrader())
		})
	}
}

func TestDecode_Payloads(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"order_availability","seq":3,"ts":77,"trader":"p1","payload":{"order":{"id":"o","asset_name":"ETF","price":10,"volume":2},"removed":true}}`))
	require.NoError(t, err)
	oa, ok := ev.(*event.OrderAvailabilityEvent)
	require.True(t, ok)
	assert.True(t, oa.Removed)
	assert.Equal(t, int64(2), oa.Order.Volume)
	assert.Equal(t, uint64(3), oa.Seq)
	assert.Equal(t, int64(77), oa.Ts)

	ev, err = Decode([]byte(`{"type":"resync","seq":9,"trader":"p1","payload":{"holdings":{"available_cash":10,"settled_cash":12,"available_assets":{"X":1},"settled_assets":{"X":3}}}}`))
	require.NoError(t, err)
	rs := ev.(*event.ResyncEvent)
	assert.Equal(t, int64(12), rs.Holdings.SettledCash)
	assert.Equal(t, int64(3), rs.Holdings.SettledAssets["X"])
}

func TestDecode_Malformed(t *testing.T) {
	tests := map[string]string{
		"not json":         `{`,
		"no type":          `{"seq":1}`,
		"no payload":       `{"type":"settlement","seq":1,"trader":"p1"}`,
		"zero volume":      `{"type":"settlement","seq":1,"trader":"p1","payload":{"price":1,"volume":0,"asset_name":"X"}}`,
		"no asset":         `{"type":"settlement","seq":1,"trader":"p1","payload":{"price":1,"volume":1}}`,
		"wrong field type": `{"type":"settlement","seq":1,"trader":"p1","payload":{"price":"1","volume":1,"asset_name":"X"}}`,
		"no makers":        `{"type":"trade","seq":1,"trader":"p1","payload":{"making_orders":[],"taking_order":{"id":"t","asset_name":"X","price":1,"volume":1}}}`,
		"bad side":         `{"type":"book_delta","seq":1,"trader":"p1","payload":{"side":7,"index":0}}`,
		"negative index":   `{"type":"book_delta","seq":1,"trader":"p1","payload":{"side":1,"index":-1}}`,
		"zero seq":         `{"type":"book_reset","seq":0,"trader":"p1","payload":{}}`,
		"missing trader":   `{"type":"book_reset","seq":1,"payload":{}}`,
		"order without id": `{"type":"book_reset","seq":1,"trader":"p1","payload":{"bids":[{"asset_name":"X","price":1,"volume":1}]}}`,
		"negative price":   `{"type":"order_availability","seq":1,"trader":"p1","payload":{"order":{"id":"o","asset_name":"X","price":-1,"volume":1}}}`,
	}

	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			ev, err := Decode([]byte(msg))
			assert.Nil(t, ev)
			assert.True(t, errors.Is(err, domain.ErrMalformedPayload), "got %v", err)
		})
	}
}

func TestDecode_IgnoresUnknownTypes(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"chat","seq":1,"trader":"p1","payload":{"text":"hi"}}`))
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestEncodeOrder(t *testing.T) {
	b, err := EncodeOrder("p1", domain.OrderRequest{ID: "r1", Price: 2500, Volume: 1, IsBid: true, AssetName: "ETF"})
	require.NoError(t, err)

	var got struct {
		Type    string              `json:"type"`
		Trader  string              `json:"trader"`
		Payload domain.OrderRequest `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "enter_order", got.Type)
	assert.Equal(t, "p1", got.Trader)
	assert.Equal(t, int64(2500), got.Payload.Price)
	assert.True(t, got.Payload.IsBid)
}
