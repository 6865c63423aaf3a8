package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"etf_cda/internal/domain"
	"etf_cda/internal/event"
	"etf_cda/internal/infra"
)

var errBookNotLoaded = &domain.ConsistencyError{
	Kind:   domain.FaultBookMismatch,
	Detail: "order book not loaded since resuming from checkpoint",
}

// ResyncRequester asks the market for a full snapshot of a trader.
type ResyncRequester interface {
	RequestResync(ctx context.Context, trader string) error
}

// Options configures a Sequencer. Journal, Checkpoints, Resync, OnUpdate and
// OnTrade are optional.
type Options struct {
	Trader       string
	Round        int
	GroupID      int
	InboxSize    int
	VerifyCounts bool
	DumpPath     string

	Journal     domain.TradeJournal
	Checkpoints domain.CheckpointStore
	Resync      ResyncRequester
	Metrics     *infra.Metrics
	OnUpdate    func(Snapshot)
	// OnTrade is called with every trade the trader took part in, after its
	// legs settled.
	OnTrade func(domain.Trade)
}

// Snapshot is a copy of one trader's state for external readers.
type Snapshot struct {
	Trader   string               `json:"trader"`
	LastSeq  uint64               `json:"last_seq"`
	Stale    bool                 `json:"stale"`
	Holdings domain.HoldingsState `json:"holdings"`
	Counters domain.CounterState  `json:"counters"`
}

// Sequencer is the single-threaded event processor of one trader. All ledger
// and book mutation happens on the goroutine running Run.
type Sequencer struct {
	opts    Options
	inbox   chan event.Event
	ledger  *domain.HoldingsLedger
	book    *domain.OwnOrderBook
	metrics *infra.Metrics

	nextSeq uint64
	// set after a gap or fault; incremental events are refused until a resync
	awaitingResync bool
	// set by ResumeFrom; the checkpoint has no book, so deltas are refused
	// until a book reset or resync loads one
	bookPending bool
	// whether the market accepted the resync request of the current stale period
	resyncSent bool

	mu       sync.RWMutex // guards snapshot, used only for external reads
	snapshot Snapshot
}

// NewSequencer creates a sequencer over the given ledger and book.
func NewSequencer(opts Options, ledger *domain.HoldingsLedger, book *domain.OwnOrderBook) *Sequencer {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1024
	}
	if opts.Metrics == nil {
		opts.Metrics = infra.GlobalMetrics
	}
	if opts.DumpPath == "" {
		opts.DumpPath = fmt.Sprintf("panic_dump_%s.json", opts.Trader)
	}
	s := &Sequencer{
		opts:    opts,
		inbox:   make(chan event.Event, opts.InboxSize),
		ledger:  ledger,
		book:    book,
		metrics: opts.Metrics,
		nextSeq: 1,
	}
	s.publish()
	return s
}

// Trader returns the trader this sequencer owns.
func (s *Sequencer) Trader() string {
	return s.opts.Trader
}

// Inbox returns the event channel. External workers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// ResumeFrom restores holdings and sequencing from a checkpoint. Must be
// called before Run. The order book is not checkpointed, so Run starts by
// asking the market for a resync.
func (s *Sequencer) ResumeFrom(lastSeq uint64, h domain.HoldingsState) {
	s.ledger.Restore(h)
	s.nextSeq = lastSeq + 1
	s.bookPending = true
	s.publish()
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.String("trader", s.opts.Trader), slog.Uint64("next_seq", s.nextSeq))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.String("trader", s.opts.Trader), slog.Any("panic", r))
			s.DumpState(s.opts.DumpPath)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	if s.bookPending {
		s.markStale(ctx, errBookNotLoaded)
		s.publish()
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...", slog.String("trader", s.opts.Trader))
			s.checkpoint(context.Background())
			return
		case ev := <-s.inbox:
			if err := s.processEvent(ctx, ev); err != nil {
				slog.Warn("Event rejected",
					slog.String("trader", s.opts.Trader),
					slog.Uint64("seq", ev.GetSeq()),
					slog.String("type", ev.GetType().String()),
					slog.Any("error", err),
				)
			}
		}
	}
}

// processEvent applies one event. A returned error means the event had no
// effect on state, or, for consistency faults, that the state is now stale.
func (s *Sequencer) processEvent(ctx context.Context, ev event.Event) error {
	start := time.Now()
	defer func() { s.metrics.RecordEvent(time.Since(start).Nanoseconds()) }()

	if ev.GetTrader() != s.opts.Trader {
		return fmt.Errorf("event for trader %q delivered to %q", ev.GetTrader(), s.opts.Trader)
	}

	if rs, ok := ev.(*event.ResyncEvent); ok {
		return s.handleResync(ctx, rs)
	}

	if s.awaitingResync {
		if !s.resyncSent {
			s.requestResync(ctx)
		}
		return fmt.Errorf("awaiting resync, dropped seq %d", ev.GetSeq())
	}

	// 1. Sequence Gap Check
	if ev.GetSeq() != s.nextSeq {
		s.metrics.RecordSequenceGap()
		err := &domain.ConsistencyError{
			Kind:   domain.FaultSequenceGap,
			Detail: fmt.Sprintf("expected %d, got %d", s.nextSeq, ev.GetSeq()),
		}
		s.markStale(ctx, err)
		s.publish()
		return err
	}

	// 2. Logic Dispatch
	var err error
	switch e := ev.(type) {
	case *event.SettlementEvent:
		err = s.settle(e.Leg)
	case *event.TradeEvent:
		err = s.handleTrade(ctx, e)
	case *event.OrderAvailabilityEvent:
		err = s.ledger.ApplyOrderAvailabilityChange(e.Order, e.Removed)
	case *event.BookDeltaEvent:
		if s.bookPending {
			err = errBookNotLoaded
			break
		}
		err = s.book.Apply(e.Delta)
		if err == nil && s.opts.VerifyCounts {
			err = s.book.Verify()
		}
	case *event.BookResetEvent:
		s.book.Reset(e.Bids, e.Asks)
		s.bookPending = false
	default:
		err = fmt.Errorf("unknown event type %s", ev.GetType())
	}

	// 3. Increment Sequence
	s.nextSeq++

	if err != nil && domain.IsConsistencyFault(err) {
		s.metrics.RecordConsistencyFault()
		s.markStale(ctx, err)
	}
	s.publish()
	return err
}

func (s *Sequencer) settle(leg domain.Leg) error {
	if err := s.ledger.ApplyTrade(leg.Price, leg.Volume, leg.IsBid, leg.AssetName); err != nil {
		return err
	}
	s.metrics.RecordLegSettled()
	return nil
}

func (s *Sequencer) handleTrade(ctx context.Context, e *event.TradeEvent) error {
	legs := e.Trade.LegsFor(s.opts.Trader)
	if len(legs) == 0 {
		return nil
	}
	for _, leg := range legs {
		if err := s.settle(leg); err != nil {
			return err
		}
	}
	if s.opts.Journal != nil {
		rec := domain.NewTradeRecord(s.opts.Trader, s.opts.Round, s.opts.GroupID, e.Seq, &e.Trade)
		if err := s.opts.Journal.RecordTrade(ctx, rec); err != nil {
			slog.Error("PERSISTENCE_FAILURE", slog.String("trader", s.opts.Trader), slog.Any("error", err))
		}
	}
	if s.opts.OnTrade != nil {
		s.opts.OnTrade(e.Trade)
	}
	return nil
}

func (s *Sequencer) handleResync(ctx context.Context, e *event.ResyncEvent) error {
	s.ledger.Restore(e.Holdings)
	s.book.Reset(e.Bids, e.Asks)
	s.bookPending = false
	s.nextSeq = e.Seq + 1
	s.awaitingResync = false
	s.resyncSent = false
	s.metrics.RecordResync()

	if err := s.ledger.VerifyInvariant(); err != nil {
		s.metrics.RecordConsistencyFault()
		s.markStale(ctx, err)
		s.publish()
		return err
	}

	slog.Info("Resynced", slog.String("trader", s.opts.Trader), slog.Uint64("seq", e.Seq))
	s.checkpoint(ctx)
	s.publish()
	return nil
}

// markStale stops incremental processing and asks the market for a snapshot.
func (s *Sequencer) markStale(ctx context.Context, cause error) {
	if s.awaitingResync {
		return
	}
	s.awaitingResync = true
	slog.Error("STATE_STALE", slog.String("trader", s.opts.Trader), slog.Any("cause", cause))
	s.requestResync(ctx)
}

// requestResync asks the market for a snapshot. A failed request is retried
// on the next refused event.
func (s *Sequencer) requestResync(ctx context.Context) {
	if s.opts.Resync == nil {
		return
	}
	if err := s.opts.Resync.RequestResync(ctx, s.opts.Trader); err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Warn("Resync request failed", slog.String("trader", s.opts.Trader), slog.Any("error", err))
		}
		return
	}
	s.resyncSent = true
}

func (s *Sequencer) checkpoint(ctx context.Context) {
	if s.opts.Checkpoints == nil || s.awaitingResync || s.nextSeq <= 1 {
		return
	}
	if err := s.opts.Checkpoints.SaveCheckpoint(ctx, s.opts.Trader, s.opts.Round, s.nextSeq-1, s.ledger.State()); err != nil {
		slog.Error("Checkpoint failed", slog.String("trader", s.opts.Trader), slog.Any("error", err))
	}
}

func (s *Sequencer) publish() {
	snap := Snapshot{
		Trader:   s.opts.Trader,
		LastSeq:  s.nextSeq - 1,
		Stale:    s.awaitingResync,
		Holdings: s.ledger.State(),
		Counters: s.book.Counters(),
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate(snap)
	}
}

// Snapshot returns the state as of the last processed event (external read).
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()

	snap.Holdings = snap.Holdings.Clone()
	snap.Counters = snap.Counters.Clone()
	return snap
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq        uint64               `json:"next_seq"`
		AwaitingResync bool                 `json:"awaiting_resync"`
		Holdings       domain.HoldingsState `json:"holdings"`
		Counters       domain.CounterState  `json:"counters"`
		Bids           []domain.Order       `json:"bids"`
		Asks           []domain.Order       `json:"asks"`
	}{
		NextSeq:        s.nextSeq,
		AwaitingResync: s.awaitingResync,
		Holdings:       s.ledger.State(),
		Counters:       s.book.Counters(),
		Bids:           s.book.Bids(),
		Asks:           s.book.Asks(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
