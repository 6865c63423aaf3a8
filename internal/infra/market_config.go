package infra

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"etf_cda/internal/domain"
	"etf_cda/pkg/currency"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

// RoundConfig is the market configuration of a single round.
type RoundConfig struct {
	PeriodLength    int                   `yaml:"period_length"`
	PlayersPerGroup int                   `yaml:"players_per_group"`
	AllowShort      bool                  `yaml:"allow_short"`
	CurrencyScale   int64                 `yaml:"currency_scale"`
	CashEndowment   domain.Endowment      `yaml:"cash_endowment"`
	States          domain.States         `yaml:"states"`
	AssetStructure  domain.AssetStructure `yaml:"asset_structure"`
}

// Validate reports configuration faults. All of them are fatal at startup.
func (r *RoundConfig) Validate() error {
	if _, err := currency.NewScaler(r.CurrencyScale); err != nil {
		return &domain.ConfigError{Field: "currency_scale", Err: err}
	}
	if len(r.States) == 0 {
		return &domain.ConfigError{Field: "states", Err: fmt.Errorf("at least one state is required")}
	}
	for name, st := range r.States {
		if st.ProbWeight < 0 {
			return &domain.ConfigError{Field: "states." + name + ".prob_weight", Err: fmt.Errorf("must not be negative")}
		}
	}
	return r.AssetStructure.Validate(r.States.Names())
}

// Scaler returns the currency scaler for this round.
func (r *RoundConfig) Scaler() (currency.Scaler, error) {
	return currency.NewScaler(r.CurrencyScale)
}

// MarketConfig is the resolved configuration for one round of a session.
// Round is nil when the requested round is past the end of the session.
type MarketConfig struct {
	NumRounds int
	Round     *RoundConfig
}

// maxCachedFiles bounds each of the session and round caches.
const maxCachedFiles = 64

type cacheEntry[T any] struct {
	value T
	mtime time.Time
}

// MarketConfigManager loads session CSVs and round YAML files. Parsed files
// are kept in LRU caches and re-read when their modification time changes.
//
// A session CSV has one row per round. The "round_config" column names the
// round YAML file; any other non-empty column is a JSON value that overrides
// the field of the same name in that round's YAML.
type MarketConfigManager struct {
	roundDir string

	mu       sync.Mutex
	sessions *lru.Cache[string, cacheEntry[[]map[string]string]]
	rounds   *lru.Cache[string, cacheEntry[map[string]interface{}]]
}

// NewMarketConfigManager creates a manager resolving round files in roundDir.
func NewMarketConfigManager(roundDir string) *MarketConfigManager {
	// lru.New only fails for a non-positive size
	sessions, _ := lru.New[string, cacheEntry[[]map[string]string]](maxCachedFiles)
	rounds, _ := lru.New[string, cacheEntry[map[string]interface{}]](maxCachedFiles)
	return &MarketConfigManager{
		roundDir: roundDir,
		sessions: sessions,
		rounds:   rounds,
	}
}

// Get resolves round (1-based) of the session config at sessionPath.
func (m *MarketConfigManager) Get(sessionPath string, round int) (*MarketConfig, error) {
	rows, err := m.session(sessionPath)
	if err != nil {
		return nil, err
	}
	if round < 1 {
		return nil, &domain.ConfigError{Field: "round", Err: fmt.Errorf("round must be >= 1, got %d", round)}
	}
	if round > len(rows) {
		return &MarketConfig{NumRounds: len(rows)}, nil
	}

	row := rows[round-1]
	name := row["round_config"]
	if name == "" {
		return nil, &domain.ConfigError{Field: "round_config", Err: fmt.Errorf("row %d has no round config", round)}
	}
	raw, err := m.round(name)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]interface{}, len(raw)+len(row))
	for k, v := range raw {
		merged[k] = v
	}
	for k, v := range row {
		if k == "round_config" || v == "" {
			continue
		}
		var parsed interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, &domain.ConfigError{Field: k, Err: fmt.Errorf("session override in row %d is not JSON: %w", round, err)}
		}
		merged[k] = parsed
	}

	rc, err := decodeRound(merged)
	if err != nil {
		return nil, &domain.ConfigError{Field: name, Err: err}
	}
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("round %d (%s): %w", round, name, err)
	}
	return &MarketConfig{NumRounds: len(rows), Round: rc}, nil
}

func decodeRound(fields map[string]interface{}) (*RoundConfig, error) {
	b, err := yaml.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var rc RoundConfig
	if err := yaml.Unmarshal(b, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

func (m *MarketConfigManager) session(path string) ([]map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, notFound("session config", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions.Get(path); ok && !e.mtime.Before(info.ModTime()) {
		return e.value, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, notFound("session config", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, &domain.ConfigError{Field: path, Err: err}
	}
	if len(records) == 0 {
		return nil, &domain.ConfigError{Field: path, Err: fmt.Errorf("session config has no header")}
	}
	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}

	m.sessions.Add(path, cacheEntry[[]map[string]string]{value: rows, mtime: info.ModTime()})
	return rows, nil
}

func (m *MarketConfigManager) round(name string) (map[string]interface{}, error) {
	path := filepath.Join(m.roundDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, notFound("round config", path, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rounds.Get(path); ok && !e.mtime.Before(info.ModTime()) {
		return e.value, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, notFound("round config", path, err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &domain.ConfigError{Field: name, Err: err}
	}

	m.rounds.Add(path, cacheEntry[map[string]interface{}]{value: raw, mtime: info.ModTime()})
	return raw, nil
}

func notFound(kind, path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s %q: %w", kind, path, domain.ErrConfigNotFound)
	}
	return fmt.Errorf("%s %q: %w", kind, path, err)
}
