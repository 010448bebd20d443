package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	companies interfaces.CompanyStorage
	targets   interfaces.TargetStorage
	claims    interfaces.ClaimStorage
	events    interfaces.EventStorage
	runs      interfaces.RunStorage
	evidence  interfaces.EvidenceStorage
	users     interfaces.UserStorage
	locks     interfaces.LockStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return NewManagerWithDB(db, logger), nil
}

// NewManagerWithDB wraps an already-open connection. Tests and the
// queue share one Badger directory through this path.
func NewManagerWithDB(db *BadgerDB, logger arbor.ILogger) *Manager {
	manager := &Manager{
		db:        db,
		companies: NewCompanyStorage(db, logger),
		targets:   NewTargetStorage(db, logger),
		claims:    NewClaimStorage(db, logger),
		events:    NewEventStorage(db, logger),
		runs:      NewRunStorage(db, logger),
		evidence:  NewEvidenceStorage(db, logger),
		users:     NewUserStorage(db, logger),
		locks:     NewLockStorage(db, logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager
}

// Companies returns the Company storage interface
func (m *Manager) Companies() interfaces.CompanyStorage {
	return m.companies
}

// Targets returns the CrawlTarget storage interface
func (m *Manager) Targets() interfaces.TargetStorage {
	return m.targets
}

// Claims returns the Claim storage interface
func (m *Manager) Claims() interfaces.ClaimStorage {
	return m.claims
}

// Events returns the ChangeEvent storage interface
func (m *Manager) Events() interfaces.EventStorage {
	return m.events
}

// Runs returns the CrawlRun storage interface
func (m *Manager) Runs() interfaces.RunStorage {
	return m.runs
}

// Evidence returns the Evidence storage interface
func (m *Manager) Evidence() interfaces.EvidenceStorage {
	return m.evidence
}

// Users returns the User storage interface
func (m *Manager) Users() interfaces.UserStorage {
	return m.users
}

// Locks returns the lock storage interface
func (m *Manager) Locks() interfaces.LockStorage {
	return m.locks
}

// DB returns the underlying connection for components that need raw
// Badger transactions (queue, locks).
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
