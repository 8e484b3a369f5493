package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type entry struct {
	Name      string `gorm:"column:entry_key;primaryKey;size:255"`
	Value     string `gorm:"column:entry_value;type:text;not null"`
	UpdatedAt time.Time
}

func (entry) TableName() string { return "kv_entries" }

// SQLiteStore keeps entries in a single SQLite table. It is the device-local
// store: one file, survives process restarts.
type SQLiteStore struct {
	db *gorm.DB
}

// SQLiteConfig controls how the SQLite file is opened.
type SQLiteConfig struct {
	Path    string
	LogMode bool
}

// OpenSQLite opens (creating when needed) the database at cfg.Path and
// migrates the entry table.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("kv: sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("kv: create db dir: %w", err)
	}

	gormLogger := logger.Default
	if !cfg.LogMode {
		gormLogger = gormLogger.LogMode(logger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("kv: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("kv: get sql db: %w", err)
	}
	// A single writer keeps SQLite free of "database is locked" errors.
	sqlDB.SetMaxOpenConns(1)
	_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
	_, _ = sqlDB.Exec("PRAGMA synchronous = NORMAL;")

	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("kv: migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStore wraps an already opened gorm handle. The caller is
// responsible for migrations and for closing the handle.
func NewSQLiteStore(db *gorm.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the value stored under key or [ErrNotFound].
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var e entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).Take(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return e.Value, nil
}

// Set upserts value under key.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	e := entry{Name: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("entry_key IN ?", keys).Delete(&entry{}).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
