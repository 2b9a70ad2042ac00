// Package catalog holds the storage-group registry: the directories, per
// host, where the backend keeps files of each named storage group.
//
// Store implementations persist locations and the host settings used to map
// backend IP addresses to hostnames. The Registry wraps a Store and annotates
// locations with locality and free space, which are computed on every call
// and never cached.
package catalog

import (
	"context"
	"errors"
)

// DefaultGroup is the storage group used when a URI names none.
const DefaultGroup = "Default"

// ErrNotFound is returned by stores when a location or setting does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Location is one storage directory of a storage group on one host.
//
// Several locations may share a group name. IsLocal and FreeBytes are filled
// in by the Registry and are never persisted.
type Location struct {
	// ID is assigned by the store on AddLocation
	ID string `json:"id"`

	Group     string `json:"group"`
	Host      string `json:"host"`
	Directory string `json:"directory"`

	// IsLocal reports whether Directory is reachable on this machine
	IsLocal bool `json:"-"`

	// FreeBytes is the available space of a local directory, nil when unknown
	FreeBytes *uint64 `json:"-"`
}

// Store persists storage locations and host settings.
//
// ListLocations returns locations in insertion order, which is the order the
// resolver searches them in. Implementations must be safe for concurrent use.
type Store interface {
	// ListLocations returns the locations of group, or of every group when
	// group is empty.
	ListLocations(ctx context.Context, group string) ([]Location, error)

	// AddLocation stores loc and returns it with its assigned ID.
	AddLocation(ctx context.Context, loc Location) (Location, error)

	// RemoveLocation deletes the location with the given ID.
	RemoveLocation(ctx context.Context, id string) error

	// SetHostIP records the BackendServerIP setting of host.
	SetHostIP(ctx context.Context, host, ip string) error

	// HostnameForIP returns the host whose BackendServerIP setting is ip.
	HostnameForIP(ctx context.Context, ip string) (string, error)

	// Close releases resources held by the store.
	Close() error
}

// Groups returns the distinct group names of locs in first-seen order.
func Groups(locs []Location) []string {
	seen := make(map[string]bool)
	var groups []string
	for _, loc := range locs {
		if !seen[loc.Group] {
			seen[loc.Group] = true
			groups = append(groups, loc.Group)
		}
	}
	return groups
}
