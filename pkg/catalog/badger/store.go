// Package badger implements a persistent catalog store on BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/pkg/catalog"
)

// Store implements catalog.Store using BadgerDB.
//
// Locations are keyed by an insertion sequence so that a prefix scan returns
// them in the order they were added. BadgerDB transactions make every
// operation atomic; the store needs no additional locking.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Config contains configuration for creating a BadgerDB catalog store.
type Config struct {
	// DBPath is the directory where BadgerDB stores its files
	DBPath string

	// InMemory keeps the database in memory (tests)
	InMemory bool

	// BadgerOptions overrides the default options when non-nil
	BadgerOptions *badger.Options
}

// NewStore opens (or creates) the catalog database.
func NewStore(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		if config.InMemory {
			opts = badger.DefaultOptions("").WithInMemory(true)
		} else {
			opts = badger.DefaultOptions(config.DBPath)
		}
		// The catalog is a handful of small records.
		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithCompression(options.None)
		opts = opts.WithBlockCacheSize(8 << 20)
		opts = opts.WithIndexCacheSize(4 << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	seq, err := db.GetSequence([]byte(keyLocationSeq), 16)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open location sequence: %w", err)
	}

	logger.Debug("Badger catalog opened at %s (in_memory=%v)", config.DBPath, config.InMemory)
	return &Store{db: db, seq: seq}, nil
}

func (s *Store) ListLocations(ctx context.Context, group string) ([]catalog.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []catalog.Location
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixLocation)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var loc catalog.Location
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &loc)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if group == "" || loc.Group == group {
				out = append(out, loc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AddLocation(ctx context.Context, loc catalog.Location) (catalog.Location, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Location{}, err
	}
	if loc.Group == "" || loc.Host == "" || loc.Directory == "" {
		return catalog.Location{}, fmt.Errorf("location requires group, host and directory")
	}

	n, err := s.seq.Next()
	if err != nil {
		return catalog.Location{}, fmt.Errorf("next location sequence: %w", err)
	}

	loc.ID = uuid.New().String()
	loc.IsLocal = false
	loc.FreeBytes = nil

	data, err := json.Marshal(loc)
	if err != nil {
		return catalog.Location{}, err
	}

	key := keyLocation(n)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(keyLocationID(loc.ID), key)
	})
	if err != nil {
		return catalog.Location{}, fmt.Errorf("store location: %w", err)
	}
	return loc, nil
}

func (s *Store) RemoveLocation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyLocationID(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("location %s: %w", id, catalog.ErrNotFound)
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(keyLocationID(id))
	})
}

func (s *Store) SetHostIP(ctx context.Context, host, ip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		// Drop the reverse entry of a previous address.
		item, err := txn.Get(keyHost(host))
		switch {
		case err == nil:
			old, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(keyIP(string(old))); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := txn.Set(keyHost(host), []byte(ip)); err != nil {
			return err
		}
		return txn.Set(keyIP(ip), []byte(host))
	})
}

func (s *Store) HostnameForIP(ctx context.Context, ip string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var host string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyIP(ip))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("BackendServerIP %s: %w", ip, catalog.ErrNotFound)
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		host = string(val)
		return nil
	})
	return host, err
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		logger.Warn("Failed to release location sequence: %v", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

var _ catalog.Store = (*Store)(nil)
