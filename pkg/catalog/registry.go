package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/mythfs/internal/logger"
)

// FreeSpaceProbe returns the bytes available to unprivileged users on the
// filesystem holding dir.
type FreeSpaceProbe func(dir string) (uint64, error)

// Registry annotates catalog locations for the host it runs on.
type Registry struct {
	store     Store
	localHost string
	probe     FreeSpaceProbe
	isDir     func(path string) bool
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithFreeSpaceProbe replaces the filesystem free-space probe.
func WithFreeSpaceProbe(probe FreeSpaceProbe) RegistryOption {
	return func(r *Registry) {
		r.probe = probe
	}
}

// WithDirCheck replaces the check used to decide whether a directory exists
// on this machine.
func WithDirCheck(isDir func(path string) bool) RegistryOption {
	return func(r *Registry) {
		r.isDir = isDir
	}
}

// NewRegistry returns a Registry over store. localHost is the hostname this
// machine is known by in the catalog.
func NewRegistry(store Store, localHost string, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:     store,
		localHost: localHost,
		probe:     StatfsFreeSpace,
		isDir:     dirExists,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying store.
func (r *Registry) Store() Store {
	return r.store
}

// LocalHost returns the configured local hostname.
func (r *Registry) LocalHost() string {
	return r.localHost
}

// Locations returns the locations of group (all groups when empty) with
// IsLocal filled in.
func (r *Registry) Locations(ctx context.Context, group string) ([]Location, error) {
	locs, err := r.store.ListLocations(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("list locations of %q: %w", group, err)
	}
	for i := range locs {
		locs[i].IsLocal = locs[i].Host == r.localHost && r.isDir(locs[i].Directory)
	}
	return locs, nil
}

// LocalLocations returns only the local locations of group.
func (r *Registry) LocalLocations(ctx context.Context, group string) ([]Location, error) {
	locs, err := r.Locations(ctx, group)
	if err != nil {
		return nil, err
	}
	local := locs[:0]
	for _, loc := range locs {
		if loc.IsLocal {
			local = append(local, loc)
		}
	}
	return local, nil
}

// WithFreeSpace fills in FreeBytes for every local location of locs. A
// location whose probe fails keeps a nil FreeBytes.
func (r *Registry) WithFreeSpace(locs []Location) []Location {
	for i := range locs {
		if !locs[i].IsLocal {
			continue
		}
		free, err := r.probe(locs[i].Directory)
		if err != nil {
			logger.Warn("Free space probe failed for %s: %v", locs[i].Directory, err)
			continue
		}
		locs[i].FreeBytes = &free
	}
	return locs
}

// HostnameForIP maps a backend IP address to its hostname.
func (r *Registry) HostnameForIP(ctx context.Context, ip string) (string, error) {
	return r.store.HostnameForIP(ctx, ip)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
