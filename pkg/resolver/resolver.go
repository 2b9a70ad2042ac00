// Package resolver turns logical file references into open file handles.
//
// A reference names a storage group, a backend host and a path inside the
// group. Reads look for the file in local storage directories first, the
// named group before all others, and fall back to a remote transfer session.
// Writes of new files go to the local directory of the group with the most
// free space, and fall back to a remote session restricted to the group's
// base directory.
package resolver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/pkg/catalog"
	"github.com/marmos91/mythfs/pkg/file"
	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/marmos91/mythfs/pkg/protocol"
	"github.com/marmos91/mythfs/pkg/transfer"
)

// Config wires a Resolver.
type Config struct {
	// Registry lists storage locations (required)
	Registry *catalog.Registry

	// Dialer opens backend connections (required)
	Dialer protocol.Dialer

	// HostCache caches IP-to-hostname lookups; nil disables caching
	HostCache *HostCache

	// Transfer configures remote sessions
	Transfer transfer.Config

	// Metrics is optional; nil disables metrics
	Metrics Metrics
}

// Resolver resolves logical file references. It is safe for concurrent use;
// every call re-queries the catalog.
type Resolver struct {
	registry *catalog.Registry
	dialer   protocol.Dialer
	cache    *HostCache
	transfer transfer.Config
	metrics  Metrics

	// seams for tests
	exists   func(path string) bool
	mkdirAll func(path string, perm os.FileMode) error
}

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Registry == nil {
		return nil, fserrors.New(fserrors.ConfigurationError, "resolver", "registry is required")
	}
	if cfg.Dialer == nil {
		return nil, fserrors.New(fserrors.ConfigurationError, "resolver", "dialer is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &Resolver{
		registry: cfg.Registry,
		dialer:   cfg.Dialer,
		cache:    cfg.HostCache,
		transfer: cfg.Transfer,
		metrics:  cfg.Metrics,
		exists:   pathExists,
		mkdirAll: os.MkdirAll,
	}, nil
}

// Registry returns the storage-group registry the resolver searches.
func (r *Resolver) Registry() *catalog.Registry {
	return r.registry
}

// OpenOptions modify Open.
type OpenOptions struct {
	// ForceRemote skips local storage and always opens a transfer session
	ForceRemote bool

	// NoOverwrite fails a write when the file already exists
	NoOverwrite bool

	// Watch tracks the size of a recording still being written (reads only)
	Watch *transfer.GrowingFileWatch
}

// Open opens the file named by uri.
func (r *Resolver) Open(ctx context.Context, uri string, mode file.Mode, opts OpenOptions) (file.Handle, error) {
	start := time.Now()
	h, target, err := r.open(ctx, uri, mode, opts)
	r.metrics.ObserveOpen(mode.String(), target, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	logger.Debug("Opened %s (%s, %s)", uri, mode, target)
	return h, nil
}

func (r *Resolver) open(ctx context.Context, uri string, mode file.Mode, opts OpenOptions) (file.Handle, string, error) {
	if mode != file.ModeRead && mode != file.ModeWrite {
		return nil, "", fserrors.Newf(fserrors.InvalidArgument, "open", "invalid mode %d", int(mode))
	}

	ref, err := Parse(uri)
	if err != nil {
		return nil, "", err
	}
	if ref, err = r.Canonical(ctx, ref); err != nil {
		return nil, "", err
	}

	if opts.ForceRemote {
		h, err := r.openForcedRemote(ctx, ref, mode, opts)
		return h, "remote", err
	}

	if mode == file.ModeRead {
		loc, found, err := r.FindFile(ctx, ref.Path, ref.Group)
		if err != nil {
			return nil, "", err
		}
		if found {
			h, err := file.OpenLocal(localPath(loc, ref.Path), file.ModeRead)
			return h, "local", err
		}
		h, err := r.openRemote(ctx, ref, file.ModeRead, opts.Watch)
		return h, "remote", err
	}

	target, err := r.ResolveWrite(ctx, ref, opts.NoOverwrite)
	if err != nil {
		return nil, "", err
	}
	if target.Local {
		h, err := file.OpenLocal(target.Path, file.ModeWrite)
		return h, "local", err
	}
	h, err := r.openRemote(ctx, ref, file.ModeWrite, nil)
	return h, "remote", err
}

func (r *Resolver) openForcedRemote(ctx context.Context, ref FileRef, mode file.Mode, opts OpenOptions) (file.Handle, error) {
	if mode == file.ModeWrite {
		if err := checkRemoteWriteScope(ref); err != nil {
			return nil, err
		}
		if opts.NoOverwrite {
			_, exists, err := r.FileExists(ctx, ref)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, overwriteConflict(ref)
			}
		}
	}
	return r.openRemote(ctx, ref, mode, opts.Watch)
}

func (r *Resolver) openRemote(ctx context.Context, ref FileRef, mode file.Mode, watch *transfer.GrowingFileWatch) (file.Handle, error) {
	s, err := transfer.Open(ctx, r.dialer, transfer.Request{
		Host:     ref.Host,
		Port:     ref.Port,
		Filename: ref.Path,
		Group:    ref.Group,
		Mode:     mode,
		Watch:    watch,
	}, r.transfer)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Canonical replaces an IPv4 host with its hostname.
func (r *Resolver) Canonical(ctx context.Context, ref FileRef) (FileRef, error) {
	if !ref.HostIsIP() {
		return ref, nil
	}

	if host, ok := r.cache.Get(ref.Host); ok {
		r.metrics.RecordHostCache(true)
		ref.Host = host
		return ref, nil
	}
	r.metrics.RecordHostCache(false)

	host, err := r.registry.HostnameForIP(ctx, ref.Host)
	if err != nil {
		return ref, &fserrors.Error{
			Code:    fserrors.ConfigurationError,
			Op:      "resolve host",
			Path:    ref.Host,
			Message: "no host has this BackendServerIP",
			Err:     err,
		}
	}
	r.cache.Put(ref.Host, host)
	ref.Host = host
	return ref, nil
}

// FindFile looks for filename in the local locations of group, then in the
// local locations of every group. The first match wins.
func (r *Resolver) FindFile(ctx context.Context, filename, group string) (catalog.Location, bool, error) {
	for _, g := range []string{group, ""} {
		locs, err := r.registry.LocalLocations(ctx, g)
		if err != nil {
			return catalog.Location{}, false, err
		}
		for _, loc := range locs {
			if r.exists(localPath(loc, filename)) {
				return loc, true, nil
			}
		}
	}
	return catalog.Location{}, false, nil
}

// WriteTarget is where a write will go.
type WriteTarget struct {
	// Local is false when the write must go through a transfer session
	Local bool

	// Path is the local file path when Local is true
	Path string

	// Location is the chosen or owning location, zero for remote writes
	// without one
	Location catalog.Location
}

// ResolveWrite decides where a write of ref goes.
//
// An existing file is rewritten in place (or refused when noOverwrite is
// set). A new file, or an existing one no location of ref.Host owns, goes to
// the local location of the group with the most free space, ties going to
// catalog order, with missing parent directories created. Without a local
// location the write is remote, which is only allowed directly in the group's
// base directory.
func (r *Resolver) ResolveWrite(ctx context.Context, ref FileRef, noOverwrite bool) (WriteTarget, error) {
	// Step 1: existing file
	existing, exists, err := r.FileExists(ctx, ref)
	if err != nil {
		return WriteTarget{}, err
	}

	locs, err := r.registry.Locations(ctx, ref.Group)
	if err != nil {
		return WriteTarget{}, err
	}

	if exists {
		if noOverwrite {
			return WriteTarget{}, overwriteConflict(ref)
		}
		// The path is the one ref.Host reported, so only its locations
		// can own it.
		for _, loc := range locs {
			if loc.Host == ref.Host && withinDir(loc.Directory, existing) {
				if loc.IsLocal {
					return WriteTarget{Local: true, Path: localPath(loc, ref.Path), Location: loc}, nil
				}
				return WriteTarget{Location: loc}, nil
			}
		}
		logger.Debug("No location owns %s, placing %s as a new file", existing, ref)
	}

	// Step 2: most free local space
	var local []catalog.Location
	for _, loc := range locs {
		if loc.IsLocal {
			local = append(local, loc)
		}
	}

	if len(local) > 0 {
		local = r.registry.WithFreeSpace(local)
		best := local[0]
		for _, loc := range local[1:] {
			if freeOf(loc) > freeOf(best) {
				best = loc
			}
		}

		// Step 3: parent directories
		path := localPath(best, ref.Path)
		if err := r.mkdirAll(filepath.Dir(path), 0o755); err != nil {
			return WriteTarget{}, fserrors.Wrap(fserrors.IOError, "mkdir", filepath.Dir(path), err)
		}
		return WriteTarget{Local: true, Path: path, Location: best}, nil
	}

	// Step 4: remote
	if err := checkRemoteWriteScope(ref); err != nil {
		return WriteTarget{}, err
	}
	return WriteTarget{}, nil
}

func checkRemoteWriteScope(ref FileRef) error {
	if strings.Contains(ref.Path, "/") {
		return &fserrors.Error{
			Code:    fserrors.WriteScopeViolation,
			Op:      "write",
			Path:    ref.Path,
			Message: "remote writes must target the storage group base directory",
		}
	}
	return nil
}

func overwriteConflict(ref FileRef) error {
	return &fserrors.Error{
		Code:    fserrors.OverwriteConflict,
		Op:      "write",
		Path:    ref.String(),
		Message: "file exists and overwriting is disabled",
	}
}

func localPath(loc catalog.Location, rel string) string {
	return filepath.Join(loc.Directory, filepath.FromSlash(rel))
}

func withinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func freeOf(loc catalog.Location) uint64 {
	if loc.FreeBytes == nil {
		return 0
	}
	return *loc.FreeBytes
}
