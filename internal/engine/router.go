package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"etf_cda/internal/event"
)

// SequencerFactory builds the sequencer of a trader seen for the first time.
type SequencerFactory func(trader string) (*Sequencer, error)

// Router fans events out to one Sequencer per trader. Each trader has its own
// queue and goroutine, so a slow or stale trader never blocks another.
type Router struct {
	ctx     context.Context
	factory SequencerFactory

	mu   sync.RWMutex
	seqs map[string]*Sequencer
	wg   sync.WaitGroup
}

// NewRouter creates a router whose sequencers run until ctx is done.
// factory may be nil, in which case only registered traders are served.
func NewRouter(ctx context.Context, factory SequencerFactory) *Router {
	return &Router{
		ctx:     ctx,
		factory: factory,
		seqs:    make(map[string]*Sequencer),
	}
}

// Register starts seq and routes its trader's events to it.
func (r *Router) Register(seq *Sequencer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seqs[seq.Trader()]; ok {
		return fmt.Errorf("trader %q already registered", seq.Trader())
	}
	r.start(seq)
	return nil
}

func (r *Router) start(seq *Sequencer) {
	r.seqs[seq.Trader()] = seq
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		seq.Run(r.ctx)
	}()
}

// Dispatch enqueues ev on its trader's sequencer, blocking while that queue
// is full.
func (r *Router) Dispatch(ctx context.Context, ev event.Event) error {
	seq, err := r.lookup(ev.GetTrader())
	if err != nil {
		return err
	}
	select {
	case seq.Inbox() <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

func (r *Router) lookup(trader string) (*Sequencer, error) {
	r.mu.RLock()
	seq, ok := r.seqs[trader]
	r.mu.RUnlock()
	if ok {
		return seq, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("no sequencer for trader %q", trader)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq, ok := r.seqs[trader]; ok {
		return seq, nil
	}
	seq, err := r.factory(trader)
	if err != nil {
		return nil, fmt.Errorf("create sequencer for %q: %w", trader, err)
	}
	slog.Info("Sequencer created", slog.String("trader", trader))
	r.start(seq)
	return seq, nil
}

// Get returns the sequencer of trader, if any.
func (r *Router) Get(trader string) (*Sequencer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seq, ok := r.seqs[trader]
	return seq, ok
}

// Traders returns the number of routed traders.
func (r *Router) Traders() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seqs)
}

// Wait blocks until every sequencer has stopped.
func (r *Router) Wait() {
	r.wg.Wait()
}
