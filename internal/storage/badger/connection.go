package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerDB owns the badgerhold store shared by every record storage
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	path   string
}

// NewBadgerDB opens the store at config.Path, wiping it first when
// reset_on_startup is set
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if err := resetDir(config.Path); err != nil {
			return nil, err
		}
		logger.Info().Str("path", config.Path).Msg("Record store reset on startup")
	}

	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", config.Path, err)
	}

	db := &BadgerDB{store: store, logger: logger, path: config.Path}
	lsm, vlog := db.Size()
	logger.Debug().
		Str("path", config.Path).
		Int64("lsm_bytes", lsm).
		Int64("vlog_bytes", vlog).
		Msg("Record store opened")
	return db, nil
}

func resetDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if filepath.Clean(path) == string(filepath.Separator) {
		return fmt.Errorf("refusing to reset database at %s", path)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to reset database directory: %w", err)
	}
	return nil
}

func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Size returns the on-disk LSM and value log sizes
func (b *BadgerDB) Size() (lsm, vlog int64) {
	if b.store == nil || b.store.Badger() == nil {
		return 0, 0
	}
	return b.store.Badger().Size()
}

func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	if err := b.store.Close(); err != nil {
		return fmt.Errorf("failed to close badger database at %s: %w", b.path, err)
	}
	return nil
}

// notFound translates badgerhold's miss into the shared sentinel
func notFound(err error, what, key string) error {
	if err == badgerhold.ErrNotFound {
		return fmt.Errorf("%s %s: %w", what, key, common.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
