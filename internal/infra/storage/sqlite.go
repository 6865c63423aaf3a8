package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"etf_cda/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite trade journal and checkpoint store.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the journal at path. An empty path resolves
// to the per-user data directory.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		p, err := defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		path = p
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Pure Go SQLite
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.TradeRecord{}, &domain.Checkpoint{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

func defaultDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}
	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "etf_cda", "data", "journal.db"), nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Trade Journal
// ======================================================================================

// RecordTrade appends a trade row.
func (s *Storage) RecordTrade(ctx context.Context, rec *domain.TradeRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// ListTrades returns the trader's trades of a round in arrival order.
func (s *Storage) ListTrades(ctx context.Context, trader string, round int) ([]domain.TradeRecord, error) {
	var recs []domain.TradeRecord
	err := s.db.WithContext(ctx).
		Where("trader = ? AND round = ?", trader, round).
		Order("seq ASC, id ASC").
		Find(&recs).Error
	return recs, err
}

// ======================================================================================
// Checkpoints
// ======================================================================================

// SaveCheckpoint stores the holdings of trader in round as of seq.
func (s *Storage) SaveCheckpoint(ctx context.Context, trader string, round int, seq uint64, h domain.HoldingsState) error {
	b, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode holdings: %w", err)
	}
	cp := domain.Checkpoint{Trader: trader, Round: round, LastSeq: seq, Holdings: string(b)}
	return s.db.WithContext(ctx).Save(&cp).Error
}

// LoadCheckpoint returns the last checkpoint of trader in round, or ok=false
// if none.
func (s *Storage) LoadCheckpoint(ctx context.Context, trader string, round int) (seq uint64, h domain.HoldingsState, ok bool, err error) {
	var cp domain.Checkpoint
	err = s.db.WithContext(ctx).First(&cp, "trader = ? AND round = ?", trader, round).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, domain.HoldingsState{}, false, nil // Not found is not an error
	}
	if err != nil {
		return 0, domain.HoldingsState{}, false, err
	}
	if err := json.Unmarshal([]byte(cp.Holdings), &h); err != nil {
		return 0, domain.HoldingsState{}, false, fmt.Errorf("decode holdings: %w", err)
	}
	return cp.LastSeq, h, true, nil
}
