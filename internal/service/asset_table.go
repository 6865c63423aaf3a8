package service

import (
	"context"
	"strconv"
	"sync"

	"etf_cda/internal/domain"
	"etf_cda/internal/engine"
	"etf_cda/pkg/currency"
)

// AssetRow is one line of the holdings table. Requested and Offered show
// "-" when the trader has no live orders for the asset.
type AssetRow struct {
	Asset     string `json:"asset"`
	Available string `json:"available"`
	Settled   string `json:"settled"`
	Requested string `json:"requested"`
	Offered   string `json:"offered"`
}

// PayoffRow lists what one unit of an asset pays in each state.
type PayoffRow struct {
	Asset  string   `json:"asset"`
	Values []string `json:"values"`
}

// AssetTable is the read model shown to a trader.
type AssetTable struct {
	LastSeq       uint64      `json:"last_seq"`
	Stale         bool        `json:"stale"`
	Rows          []AssetRow  `json:"rows"`
	AvailableCash string      `json:"available_cash"`
	SettledCash   string      `json:"settled_cash"`
	States        []string    `json:"states"`
	Probabilities []string    `json:"probabilities"`
	Payoffs       []PayoffRow `json:"payoffs"`
}

// AssetTableService turns sequencer snapshots into an AssetTable.
type AssetTableService struct {
	structure domain.AssetStructure
	states    domain.States
	scaler    currency.Scaler

	mu      sync.RWMutex
	table   AssetTable
	updates chan engine.Snapshot
}

// NewAssetTableService creates the service. The state and payoff parts of
// the table are fixed for the round and computed once.
func NewAssetTableService(structure domain.AssetStructure, states domain.States, scaler currency.Scaler) *AssetTableService {
	s := &AssetTableService{
		structure: structure,
		states:    states,
		scaler:    scaler,
		updates:   make(chan engine.Snapshot, 1),
	}

	stateNames := states.Names()
	s.table.States = stateNames
	s.table.Probabilities = make([]string, len(stateNames))
	for i, st := range stateNames {
		s.table.Probabilities[i] = states.ProbabilityLabel(st)
	}
	for _, asset := range structure.Names() {
		row := PayoffRow{Asset: asset, Values: make([]string, len(stateNames))}
		for i, st := range stateNames {
			row.Values[i] = strconv.FormatInt(structure.AssetValue(asset, st), 10)
		}
		s.table.Payoffs = append(s.table.Payoffs, row)
	}
	return s
}

// OnSnapshot queues snap for the processor. Only the newest pending snapshot
// is kept; it never blocks the caller.
func (s *AssetTableService) OnSnapshot(snap engine.Snapshot) {
	for {
		select {
		case s.updates <- snap:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

// StartProcessor starts a background goroutine applying queued snapshots.
func (s *AssetTableService) StartProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-s.updates:
				s.Apply(snap)
			}
		}
	}()
}

// Apply rebuilds the holdings part of the table from snap.
func (s *AssetTableService) Apply(snap engine.Snapshot) {
	names := s.structure.Names()
	rows := make([]AssetRow, len(names))
	for i, asset := range names {
		rows[i] = AssetRow{
			Asset:     asset,
			Available: strconv.FormatInt(snap.Holdings.AvailableAssets[asset], 10),
			Settled:   strconv.FormatInt(snap.Holdings.SettledAssets[asset], 10),
			Requested: orderCount(snap.Counters.Requested[asset]),
			Offered:   orderCount(snap.Counters.Offered[asset]),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.table.LastSeq = snap.LastSeq
	s.table.Stale = snap.Stale
	s.table.Rows = rows
	s.table.AvailableCash = "$" + s.scaler.Format(snap.Holdings.AvailableCash)
	s.table.SettledCash = "$" + s.scaler.Format(snap.Holdings.SettledCash)
}

func orderCount(n int64) string {
	if n > 0 {
		return strconv.FormatInt(n, 10)
	}
	return "-"
}

// Table returns the current table.
func (s *AssetTableService) Table() AssetTable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.table
	t.Rows = append([]AssetRow(nil), s.table.Rows...)
	return t
}

// TradeLabel renders a trade for the trade list: the price followed by
// " B", " S" or " BS" when owner took part, e.g. "$2.5 B".
func TradeLabel(t *domain.Trade, owner string, scaler currency.Scaler) string {
	label := "$" + scaler.Format(t.Price())
	if side := t.SideIndicator(owner); side != "" {
		label += " " + side
	}
	return label
}
