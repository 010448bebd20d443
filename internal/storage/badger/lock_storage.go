package badger

import (
	"context"
	"fmt"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/interfaces"
)

// LockStorage implements store-backed leases on raw Badger entries.
// Acquire writes the lock key with a TTL inside a single transaction,
// so exactly one contender wins and a crashed holder's lease expires
// on its own.
type LockStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLockStorage creates a new LockStorage instance
func NewLockStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LockStorage {
	return &LockStorage{
		db:     db,
		logger: logger,
	}
}

func lockKey(name string) []byte {
	return []byte("lock:" + name)
}

func (s *LockStorage) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	acquired := false
	holder := fmt.Sprintf("%s/%d", hostnameOr("unknown"), os.Getpid())

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(lockKey(name))
		if err == nil {
			// Live lease held by someone.
			return nil
		}
		if err != badgerdb.ErrKeyNotFound {
			return err
		}

		entry := badgerdb.NewEntry(lockKey(name), []byte(holder)).WithTTL(ttl)
		if err := txn.SetEntry(entry); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}

	if acquired {
		s.logger.Debug().Str("lock", name).Str("holder", holder).Str("ttl", ttl.String()).Msg("Lock acquired")
	}
	return acquired, nil
}

func (s *LockStorage) Release(ctx context.Context, name string) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(lockKey(name))
	})
	if err != nil && err != badgerdb.ErrKeyNotFound {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
