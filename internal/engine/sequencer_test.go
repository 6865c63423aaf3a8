package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"etf_cda/internal/domain"
	"etf_cda/internal/event"
	"etf_cda/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAssets = domain.AssetStructure{
	"X":   {Payoffs: map[string]int64{"G": 100}},
	"Y":   {Payoffs: map[string]int64{"G": 50}},
	"ETF": {IsETF: true, ETFWeights: map[string]int64{"X": 1, "Y": 2}},
}

type fakeJournal struct {
	mu   sync.Mutex
	recs []*domain.TradeRecord
}

func (j *fakeJournal) RecordTrade(_ context.Context, rec *domain.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.recs = append(j.recs, rec)
	return nil
}

func (j *fakeJournal) ListTrades(_ context.Context, trader string, round int) ([]domain.TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []domain.TradeRecord
	for _, r := range j.recs {
		if r.Trader == trader && r.Round == round {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeResync struct {
	mu       sync.Mutex
	requests []string
	failures int // number of leading calls that fail
	attempts int
}

func (f *fakeResync) RequestResync(_ context.Context, trader string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("not connected")
	}
	f.requests = append(f.requests, trader)
	return nil
}

func (f *fakeResync) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeCheckpoints struct {
	seq      uint64
	holdings domain.HoldingsState
	saves    int
}

func (c *fakeCheckpoints) SaveCheckpoint(_ context.Context, _ string, _ int, seq uint64, h domain.HoldingsState) error {
	c.seq, c.holdings = seq, h
	c.saves++
	return nil
}

func (c *fakeCheckpoints) LoadCheckpoint(context.Context, string, int) (uint64, domain.HoldingsState, bool, error) {
	return c.seq, c.holdings, c.saves > 0, nil
}

func newTestSequencer(t *testing.T, opts Options) *Sequencer {
	t.Helper()
	d, err := domain.NewDecomposition(testAssets)
	require.NoError(t, err)
	if opts.Trader == "" {
		opts.Trader = "me"
	}
	if opts.Metrics == nil {
		opts.Metrics = &infra.Metrics{}
	}
	ledger := domain.NewHoldingsLedger(d, domain.NewHoldingsState(10_000, map[string]int64{"X": 10, "Y": 10}))
	book := domain.NewOwnOrderBook(opts.Trader, testAssets.Names())
	return NewSequencer(opts, ledger, book)
}

func base(seq uint64) event.BaseEvent {
	return event.BaseEvent{Seq: seq, Ts: int64(seq) * 1000, Trader: "me"}
}

func TestSequencer_Settlement(t *testing.T) {
	s := newTestSequencer(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.processEvent(ctx, &event.SettlementEvent{
		BaseEvent: base(1),
		Leg:       domain.Leg{Price: 100, Volume: 3, IsBid: false, AssetName: "ETF"},
	}))

	snap := s.Snapshot()
	assert.Equal(t, uint64(1), snap.LastSeq)
	assert.False(t, snap.Stale)
	assert.Equal(t, int64(10_300), snap.Holdings.SettledCash)
	assert.Equal(t, int64(7), snap.Holdings.SettledAssets["X"])
	assert.Equal(t, int64(4), snap.Holdings.SettledAssets["Y"])
	assert.Equal(t, uint64(1), s.metrics.Snapshot().LegsSettled)
}

func TestSequencer_TradeSettlesOwnLegsAndJournals(t *testing.T) {
	journal := &fakeJournal{}
	var traded []domain.Trade
	s := newTestSequencer(t, Options{
		Journal: journal,
		Round:   2,
		GroupID: 5,
		OnTrade: func(tr domain.Trade) { traded = append(traded, tr) },
	})
	ctx := context.Background()

	trade := domain.Trade{
		Timestamp: 42,
		MakingOrders: []domain.Order{
			{ID: "m1", AssetName: "X", IsBid: false, Price: 90, Volume: 1, OwnerID: "me"},
			{ID: "m2", AssetName: "X", IsBid: false, Price: 95, Volume: 2, OwnerID: "other"},
		},
		TakingOrder: domain.Order{ID: "t", AssetName: "X", IsBid: true, Price: 100, Volume: 3, OwnerID: "buyer"},
	}
	require.NoError(t, s.processEvent(ctx, &event.TradeEvent{BaseEvent: base(1), Trade: trade}))

	h := s.Snapshot().Holdings
	assert.Equal(t, int64(10_090), h.SettledCash)
	assert.Equal(t, int64(9), h.SettledAssets["X"])

	recs, err := journal.ListTrades(ctx, "me", 2)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "S", recs[0].Side)
	assert.Equal(t, int64(90), recs[0].Price)
	assert.Equal(t, 5, recs[0].GroupID)
	require.Len(t, traded, 1)
	assert.Equal(t, "m1", traded[0].MakingOrders[0].ID)

	// someone else's trade: no effect, no journal entry
	trade.MakingOrders[0].OwnerID = "third"
	require.NoError(t, s.processEvent(ctx, &event.TradeEvent{BaseEvent: base(2), Trade: trade}))
	assert.True(t, h.Equal(s.Snapshot().Holdings))
	recs, _ = journal.ListTrades(ctx, "me", 2)
	assert.Len(t, recs, 1)
	assert.Len(t, traded, 1)
}

func TestSequencer_OrderAvailabilityAndBook(t *testing.T) {
	s := newTestSequencer(t, Options{VerifyCounts: true})
	ctx := context.Background()

	ask := domain.Order{ID: "a1", AssetName: "ETF", IsBid: false, Price: 300, Volume: 1, OwnerID: "me"}
	require.NoError(t, s.processEvent(ctx, &event.BookResetEvent{BaseEvent: base(1)}))
	require.NoError(t, s.processEvent(ctx, &event.OrderAvailabilityEvent{BaseEvent: base(2), Order: ask}))
	require.NoError(t, s.processEvent(ctx, &event.BookDeltaEvent{
		BaseEvent: base(3),
		Delta:     domain.BookDelta{Side: domain.SideAsk, Index: 0, Inserted: []domain.Order{ask}},
	}))

	snap := s.Snapshot()
	assert.Equal(t, int64(9), snap.Holdings.AvailableAssets["X"])
	assert.Equal(t, int64(8), snap.Holdings.AvailableAssets["Y"])
	assert.Equal(t, int64(10), snap.Holdings.SettledAssets["Y"])
	assert.Equal(t, int64(1), snap.Counters.Offered["ETF"])

	require.NoError(t, s.processEvent(ctx, &event.BookDeltaEvent{
		BaseEvent: base(4),
		Delta:     domain.BookDelta{Side: domain.SideAsk, Index: 0, Removed: []domain.Order{ask}},
	}))
	require.NoError(t, s.processEvent(ctx, &event.OrderAvailabilityEvent{BaseEvent: base(5), Order: ask, Removed: true}))

	snap = s.Snapshot()
	assert.Equal(t, int64(0), snap.Counters.Offered["ETF"])
	assert.Equal(t, int64(10), snap.Holdings.AvailableAssets["Y"])
}

func TestSequencer_GapMarksStaleUntilResync(t *testing.T) {
	resync := &fakeResync{}
	checkpoints := &fakeCheckpoints{}
	s := newTestSequencer(t, Options{Resync: resync, Checkpoints: checkpoints})
	ctx := context.Background()

	leg := domain.Leg{Price: 10, Volume: 1, IsBid: true, AssetName: "X"}
	require.NoError(t, s.processEvent(ctx, &event.SettlementEvent{BaseEvent: base(1), Leg: leg}))

	err := s.processEvent(ctx, &event.SettlementEvent{BaseEvent: base(3), Leg: leg})
	var ce *domain.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.FaultSequenceGap, ce.Kind)
	assert.True(t, s.Snapshot().Stale)
	assert.Equal(t, 1, resync.count())
	assert.Equal(t, uint64(1), s.metrics.Snapshot().SequenceGaps)

	// refused while stale, and no second request
	before := s.Snapshot().Holdings
	assert.Error(t, s.processEvent(ctx, &event.SettlementEvent{BaseEvent: base(2), Leg: leg}))
	assert.True(t, before.Equal(s.Snapshot().Holdings))
	assert.Equal(t, 1, resync.count())

	fresh := domain.NewHoldingsState(500, map[string]int64{"X": 1, "Y": 2})
	require.NoError(t, s.processEvent(ctx, &event.ResyncEvent{BaseEvent: base(7), Holdings: fresh}))
	snap := s.Snapshot()
	assert.False(t, snap.Stale)
	assert.Equal(t, uint64(7), snap.LastSeq)
	assert.True(t, fresh.Equal(snap.Holdings))
	assert.Equal(t, uint64(7), checkpoints.seq)

	require.NoError(t, s.processEvent(ctx, &event.SettlementEvent{BaseEvent: base(8), Leg: leg}))
	assert.Equal(t, int64(490), s.Snapshot().Holdings.SettledCash)
}

func TestSequencer_FailedResyncRequestIsRetried(t *testing.T) {
	resync := &fakeResync{failures: 1}
	s := newTestSequencer(t, Options{Resync: resync})
	ctx := context.Background()
	leg := domain.Leg{Price: 10, Volume: 1, IsBid: true, AssetName: "X"}

	require.Error(t, s.processEvent(ctx, &event.SettlementEvent{BaseEvent: base(2), Leg: leg}))
	assert.True(t, s.Snapshot().Stale)
	assert.Equal(t, 0, resync.count())

	// the next refused event retries, later ones do not
	assert.Error(t, s.processEvent(ctx, &event.SettlementEvent{BaseEvent: base(3), Leg: leg}))
	assert.Error(t, s.processEvent(ctx, &event.SettlementEvent{BaseEvent: base(4), Leg: leg}))
	assert.Equal(t, 1, resync.count())
	assert.Equal(t, 2, resync.attempts)
}

func TestSequencer_ConsistencyFaults(t *testing.T) {
	t.Run("unknown asset", func(t *testing.T) {
		resync := &fakeResync{}
		s := newTestSequencer(t, Options{Resync: resync})
		err := s.processEvent(context.Background(), &event.SettlementEvent{
			BaseEvent: base(1),
			Leg:       domain.Leg{Price: 1, Volume: 1, AssetName: "GHOST"},
		})
		assert.True(t, domain.IsConsistencyFault(err))
		assert.True(t, s.Snapshot().Stale)
		assert.Equal(t, 1, resync.count())
		assert.Equal(t, uint64(1), s.metrics.Snapshot().ConsistencyFaults)
	})

	t.Run("book mismatch", func(t *testing.T) {
		s := newTestSequencer(t, Options{})
		err := s.processEvent(context.Background(), &event.BookDeltaEvent{
			BaseEvent: base(1),
			Delta:     domain.BookDelta{Side: domain.SideBid, Removed: []domain.Order{{ID: "nope"}}},
		})
		assert.True(t, domain.IsConsistencyFault(err))
		assert.True(t, s.Snapshot().Stale)
	})

	t.Run("resync carrying composite inventory", func(t *testing.T) {
		s := newTestSequencer(t, Options{})
		err := s.processEvent(context.Background(), &event.ResyncEvent{
			BaseEvent: base(1),
			Holdings:  domain.NewHoldingsState(0, map[string]int64{"ETF": 1}),
		})
		assert.True(t, domain.IsConsistencyFault(err))
		assert.True(t, s.Snapshot().Stale)
	})
}

func TestSequencer_RejectsOtherTrader(t *testing.T) {
	s := newTestSequencer(t, Options{})
	ev := &event.BookResetEvent{BaseEvent: event.BaseEvent{Seq: 1, Trader: "you"}}
	assert.Error(t, s.processEvent(context.Background(), ev))
	assert.Equal(t, uint64(0), s.Snapshot().LastSeq)
}

func TestSequencer_ResumeRefusesDeltasUntilBookLoaded(t *testing.T) {
	resync := &fakeResync{}
	s := newTestSequencer(t, Options{Resync: resync, VerifyCounts: true})
	ctx := context.Background()

	s.ResumeFrom(5, domain.NewHoldingsState(10_000, map[string]int64{"X": 10, "Y": 10}))

	myBid := domain.Order{ID: "b1", AssetName: "X", IsBid: true, Price: 100, Volume: 1, OwnerID: "me"}
	err := s.processEvent(ctx, &event.BookDeltaEvent{
		BaseEvent: base(6),
		Delta:     domain.BookDelta{Side: domain.SideBid, Index: 0, Inserted: []domain.Order{myBid}},
	})
	var ce *domain.ConsistencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.FaultBookMismatch, ce.Kind)

	snap := s.Snapshot()
	assert.True(t, snap.Stale)
	assert.Equal(t, int64(0), snap.Counters.Requested["X"])
	assert.Equal(t, 1, resync.count())
	assert.Equal(t, uint64(1), s.metrics.Snapshot().ConsistencyFaults)

	book := []domain.Order{myBid, {ID: "b2", AssetName: "X", IsBid: true, Price: 90, Volume: 1, OwnerID: "me"}}
	require.NoError(t, s.processEvent(ctx, &event.ResyncEvent{
		BaseEvent: base(9),
		Holdings:  domain.NewHoldingsState(10_000, map[string]int64{"X": 10, "Y": 10}),
		Bids:      book,
	}))
	require.NoError(t, s.processEvent(ctx, &event.BookDeltaEvent{
		BaseEvent: base(10),
		Delta:     domain.BookDelta{Side: domain.SideBid, Index: 0, Removed: []domain.Order{myBid}},
	}))

	snap = s.Snapshot()
	assert.False(t, snap.Stale)
	assert.Equal(t, int64(1), snap.Counters.Requested["X"])
}

func TestSequencer_ResumeAcceptsBookReset(t *testing.T) {
	s := newTestSequencer(t, Options{VerifyCounts: true})
	ctx := context.Background()

	s.ResumeFrom(2, domain.NewHoldingsState(10_000, map[string]int64{"X": 10, "Y": 10}))
	require.NoError(t, s.processEvent(ctx, &event.BookResetEvent{BaseEvent: base(3)}))
	require.NoError(t, s.processEvent(ctx, &event.BookDeltaEvent{
		BaseEvent: base(4),
		Delta:     domain.BookDelta{Side: domain.SideAsk, Index: 0, Inserted: []domain.Order{{ID: "a", AssetName: "Y", Volume: 1, OwnerID: "me"}}},
	}))
	assert.Equal(t, int64(1), s.Snapshot().Counters.Offered["Y"])
	assert.False(t, s.Snapshot().Stale)
}

func TestSequencer_RunAndResume(t *testing.T) {
	checkpoints := &fakeCheckpoints{}
	resync := &fakeResync{}
	updates := make(chan Snapshot, 10)
	s := newTestSequencer(t, Options{
		Checkpoints: checkpoints,
		Resync:      resync,
		OnUpdate:    func(snap Snapshot) { updates <- snap },
	})
	<-updates // initial publish

	s.ResumeFrom(4, domain.NewHoldingsState(777, map[string]int64{"X": 1}))
	<-updates

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// resumed without a book: stale until the market resends a snapshot
	select {
	case snap := <-updates:
		assert.True(t, snap.Stale)
		assert.Equal(t, uint64(4), snap.LastSeq)
	case <-time.After(2 * time.Second):
		t.Fatal("no update published")
	}
	assert.Equal(t, 1, resync.count())

	s.Inbox() <- &event.ResyncEvent{BaseEvent: base(5), Holdings: domain.NewHoldingsState(777, map[string]int64{"X": 1})}
	s.Inbox() <- &event.SettlementEvent{BaseEvent: base(6), Leg: domain.Leg{Price: 7, Volume: 1, IsBid: true, AssetName: "X"}}

	deadline := time.After(2 * time.Second)
	for {
		var snap Snapshot
		select {
		case snap = <-updates:
		case <-deadline:
			t.Fatal("settlement not applied")
		}
		if snap.LastSeq == 6 {
			assert.False(t, snap.Stale)
			assert.Equal(t, int64(770), snap.Holdings.SettledCash)
			break
		}
	}

	cancel()
	<-done
	assert.Equal(t, uint64(6), checkpoints.seq)
	assert.Equal(t, int64(770), checkpoints.holdings.SettledCash)
}

func TestSequencer_SnapshotIsACopy(t *testing.T) {
	s := newTestSequencer(t, Options{})
	snap := s.Snapshot()
	snap.Holdings.SettledAssets["X"] = 999
	assert.Equal(t, int64(10), s.Snapshot().Holdings.SettledAssets["X"])
}
