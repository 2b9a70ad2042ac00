package resolver

import (
	"context"
	"time"

	"github.com/marmos91/mythfs/pkg/protocol"
)

// FileExists asks the backend of ref whether the file exists in ref's
// group. It returns the backend's full path of the file.
func (r *Resolver) FileExists(ctx context.Context, ref FileRef) (string, bool, error) {
	var (
		path   string
		exists bool
	)
	err := r.fileOp(ctx, "exists", ref, protocol.QueryFileExists{Filename: ref.Path, Group: ref.Group}.String(), func(resp string) error {
		var err error
		path, exists, err = protocol.ParseFileExistsReply(resp)
		return err
	})
	return path, exists, err
}

// FileHash returns the backend's hash of the file.
func (r *Resolver) FileHash(ctx context.Context, ref FileRef) (string, error) {
	var hash string
	err := r.fileOp(ctx, "hash", ref, protocol.QueryFileHash{Filename: ref.Path, Group: ref.Group}.String(), func(resp string) error {
		var err error
		hash, err = protocol.ParseFileHashReply(resp)
		return err
	})
	return hash, err
}

// DeleteFile asks the backend to delete the file. It reports whether a file
// was deleted.
func (r *Resolver) DeleteFile(ctx context.Context, ref FileRef) (bool, error) {
	var deleted bool
	err := r.fileOp(ctx, "delete", ref, protocol.DeleteFile{Filename: ref.Path, Group: ref.Group}.String(), func(resp string) error {
		var err error
		deleted, err = protocol.ParseDeleteFileReply(resp)
		return err
	})
	return deleted, err
}

// FreeSpaceList returns the free space of every storage directory known to
// host.
func (r *Resolver) FreeSpaceList(ctx context.Context, host string, port int) ([]protocol.FreeSpace, error) {
	ref, err := r.Canonical(ctx, FileRef{Host: host, Port: port})
	if err != nil {
		return nil, err
	}

	var list []protocol.FreeSpace
	err = r.fileOp(ctx, "free_space", ref, protocol.QueryFreeSpaceList{}.String(), func(resp string) error {
		var err error
		list, err = protocol.ParseFreeSpaceList(resp)
		return err
	})
	return list, err
}

// fileOp sends one command on a fresh control connection to ref's host.
func (r *Resolver) fileOp(ctx context.Context, name string, ref FileRef, command string, parse func(resp string) error) (err error) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveFileOp(name, time.Since(start), err)
	}()

	ctrl, err := r.dialer.DialControl(ctx, ref.Host, ref.Port, false)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	resp, err := ctrl.Send(ctx, command)
	if err != nil {
		return err
	}
	return parse(resp)
}
