package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"etf_cda/internal/domain"
	"etf_cda/internal/event"
	"etf_cda/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_PerTraderQueues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := domain.NewDecomposition(testAssets)
	require.NoError(t, err)
	factory := func(trader string) (*Sequencer, error) {
		if trader == "bad" {
			return nil, fmt.Errorf("unknown participant")
		}
		ledger := domain.NewHoldingsLedger(d, domain.NewHoldingsState(1000, nil))
		book := domain.NewOwnOrderBook(trader, testAssets.Names())
		return NewSequencer(Options{Trader: trader, Metrics: &infra.Metrics{}}, ledger, book), nil
	}
	r := NewRouter(ctx, factory)

	for _, trader := range []string{"a", "b"} {
		for seq := uint64(1); seq <= 3; seq++ {
			ev := &event.SettlementEvent{
				BaseEvent: event.BaseEvent{Seq: seq, Trader: trader},
				Leg:       domain.Leg{Price: 10, Volume: 1, IsBid: true, AssetName: "X"},
			}
			require.NoError(t, r.Dispatch(ctx, ev))
		}
	}
	assert.Equal(t, 2, r.Traders())

	for _, trader := range []string{"a", "b"} {
		seq, ok := r.Get(trader)
		require.True(t, ok)
		assert.Eventually(t, func() bool { return seq.Snapshot().LastSeq == 3 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, int64(970), seq.Snapshot().Holdings.SettledCash)
	}

	err = r.Dispatch(ctx, &event.BookResetEvent{BaseEvent: event.BaseEvent{Seq: 1, Trader: "bad"}})
	assert.Error(t, err)

	cancel()
	r.Wait()
}

func TestRouter_RegisteredOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRouter(ctx, nil)
	s := newTestSequencer(t, Options{Trader: "me"})
	require.NoError(t, r.Register(s))
	assert.Error(t, r.Register(s))

	require.NoError(t, r.Dispatch(ctx, &event.BookResetEvent{BaseEvent: base(1)}))
	assert.Error(t, r.Dispatch(ctx, &event.BookResetEvent{BaseEvent: event.BaseEvent{Seq: 1, Trader: "stranger"}}))
	assert.Eventually(t, func() bool { return s.Snapshot().LastSeq == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	r.Wait()
}
