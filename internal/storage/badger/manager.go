package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	asset      interfaces.AssetStorage
	content    interfaces.ContentStorage
	reference  interfaces.ReferenceStorage
	brokenLink interfaces.BrokenLinkStorage
	duplicate  interfaces.DuplicateStorage
	whitelist  interfaces.WhitelistStorage
	status     interfaces.StatusStorage
	logs       *LogStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:         db,
		asset:      NewAssetStorage(db, logger),
		content:    NewContentStorage(db, logger),
		reference:  NewReferenceStorage(db, logger),
		brokenLink: NewBrokenLinkStorage(db, logger),
		duplicate:  NewDuplicateStorage(db, logger),
		whitelist:  NewWhitelistStorage(db, logger),
		status:     NewStatusStorage(db, logger),
		logs:       NewLogStorage(db, logger),
		logger:     logger,
	}
}

// AssetStorage returns the Asset storage interface
func (m *Manager) AssetStorage() interfaces.AssetStorage {
	return m.asset
}

// ContentStorage returns the Content storage interface
func (m *Manager) ContentStorage() interfaces.ContentStorage {
	return m.content
}

// ReferenceStorage returns the Reference storage interface
func (m *Manager) ReferenceStorage() interfaces.ReferenceStorage {
	return m.reference
}

// BrokenLinkStorage returns the BrokenLink storage interface
func (m *Manager) BrokenLinkStorage() interfaces.BrokenLinkStorage {
	return m.brokenLink
}

// DuplicateStorage returns the Duplicate storage interface
func (m *Manager) DuplicateStorage() interfaces.DuplicateStorage {
	return m.duplicate
}

// WhitelistStorage returns the Whitelist storage interface
func (m *Manager) WhitelistStorage() interfaces.WhitelistStorage {
	return m.whitelist
}

// StatusStorage returns the Status storage interface
func (m *Manager) StatusStorage() interfaces.StatusStorage {
	return m.status
}

// CleanupLogStorage returns the CleanupLog storage interface
func (m *Manager) CleanupLogStorage() interfaces.CleanupLogStorage {
	return m.logs
}

// ProcessingLogStorage returns the ProcessingLog storage interface
func (m *Manager) ProcessingLogStorage() interfaces.ProcessingLogStorage {
	return m.logs
}

// DB returns the underlying badgerhold store
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
