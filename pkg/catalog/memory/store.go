// Package memory implements an in-memory catalog store, typically seeded from
// the configuration file.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/mythfs/pkg/catalog"
)

// Store is an in-memory catalog.Store. Locations keep insertion order.
type Store struct {
	mu        sync.RWMutex
	locations []catalog.Location
	hostIPs   map[string]string // host -> BackendServerIP
}

// Config seeds a memory store.
type Config struct {
	Locations []catalog.Location

	// HostIPs maps hostnames to their BackendServerIP setting
	HostIPs map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{hostIPs: make(map[string]string)}
}

// NewStoreFromConfig returns a store seeded with cfg.
func NewStoreFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	s := NewStore()
	for _, loc := range cfg.Locations {
		if _, err := s.AddLocation(ctx, loc); err != nil {
			return nil, err
		}
	}
	for host, ip := range cfg.HostIPs {
		if err := s.SetHostIP(ctx, host, ip); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) ListLocations(ctx context.Context, group string) ([]catalog.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		if group == "" || loc.Group == group {
			out = append(out, loc)
		}
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

	s.mu.Lock()
	defer s.mu.Unlock()

	loc.ID = uuid.New().String()
	loc.IsLocal = false
	loc.FreeBytes = nil
	s.locations = append(s.locations, loc)
	return loc, nil
}

func (s *Store) RemoveLocation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, loc := range s.locations {
		if loc.ID == id {
			s.locations = append(s.locations[:i], s.locations[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("location %s: %w", id, catalog.ErrNotFound)
}

func (s *Store) SetHostIP(ctx context.Context, host, ip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hostIPs[host] = ip
	return nil
}

func (s *Store) HostnameForIP(ctx context.Context, ip string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for host, hostIP := range s.hostIPs {
		if hostIP == ip {
			return host, nil
		}
	}
	return "", fmt.Errorf("BackendServerIP %s: %w", ip, catalog.ErrNotFound)
}

func (s *Store) Close() error {
	return nil
}

var _ catalog.Store = (*Store)(nil)
