package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/pkg/file"
	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/marmos91/mythfs/pkg/resolver"
	"github.com/marmos91/mythfs/pkg/transfer"
	"github.com/spf13/pflag"
)

// watchFlags registers --chanid and --starttime on flags. The returned func
// builds the watch once flags are parsed; it is nil when neither is set.
func watchFlags(flags *pflag.FlagSet) func() (*transfer.GrowingFileWatch, error) {
	chanID := flags.Int64("chanid", 0, "Channel ID of a recording still being written (requires --starttime)")
	start := flags.String("starttime", "", "Start time of that recording (requires --chanid)")

	return func() (*transfer.GrowingFileWatch, error) {
		chanSet, startSet := flags.Changed("chanid"), flags.Changed("starttime")
		if !chanSet && !startSet {
			return nil, nil
		}
		if chanSet != startSet {
			return nil, usagef("--chanid and --starttime must be given together")
		}
		if *chanID <= 0 {
			return nil, usagef("--chanid: must be positive")
		}
		t, err := parseTime(*start)
		if err != nil {
			return nil, usagef("--starttime: %v", err)
		}
		return &transfer.GrowingFileWatch{ChanID: *chanID, StartTime: t}, nil
	}
}

func runCat(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("cat")
	remote := flags.Bool("remote", false, "Always read through the backend")
	offset := flags.Int64("offset", 0, "Start reading at this byte offset")
	watch := watchFlags(flags)
	rest, err := parseArgs(flags, args, 1, 1)
	if err != nil {
		return err
	}
	w, err := watch()
	if err != nil {
		return err
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	h, err := a.resolver.Open(ctx, rest[0], file.ModeRead, resolver.OpenOptions{ForceRemote: *remote, Watch: w})
	if err != nil {
		return err
	}
	defer h.Close()

	if *offset > 0 {
		if _, err := h.Seek(*offset, io.SeekStart); err != nil {
			return err
		}
	}
	_, err = io.Copy(g.stdout, h)
	return err
}

func runGet(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("get")
	remote := flags.Bool("remote", false, "Always read through the backend")
	watch := watchFlags(flags)
	rest, err := parseArgs(flags, args, 1, 2)
	if err != nil {
		return err
	}
	w, err := watch()
	if err != nil {
		return err
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := resolver.Parse(rest[0])
	if err != nil {
		return err
	}
	dest := path.Base(ref.Path)
	if len(rest) == 2 {
		dest = rest[1]
	}

	h, err := a.resolver.Open(ctx, rest[0], file.ModeRead, resolver.OpenOptions{ForceRemote: *remote, Watch: w})
	if err != nil {
		return err
	}
	defer h.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fserrors.Wrap(fserrors.IOError, "create", dest, err)
	}

	n, err := io.Copy(out, h)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}

	logger.Info("Copied %s (%s) to %s", rest[0], humanize.IBytes(uint64(n)), dest)
	return nil
}

func runPut(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("put")
	remote := flags.Bool("remote", false, "Always write through the backend")
	noOverwrite := flags.Bool("no-overwrite", false, "Fail when the file already exists")
	rest, err := parseArgs(flags, args, 2, 2)
	if err != nil {
		return err
	}

	src, err := os.Open(rest[0])
	if err != nil {
		return fserrors.Wrap(fserrors.IOError, "open", rest[0], err)
	}
	defer src.Close()

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	h, err := a.resolver.Open(ctx, rest[1], file.ModeWrite, resolver.OpenOptions{
		ForceRemote: *remote,
		NoOverwrite: *noOverwrite,
	})
	if err != nil {
		return err
	}

	n, err := io.Copy(h, src)
	if cerr := h.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	logger.Info("Copied %s (%s) to %s", rest[0], humanize.IBytes(uint64(n)), rest[1])
	return nil
}

func runLocate(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("locate")
	rest, err := parseArgs(flags, args, 1, 1)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := a.ref(ctx, rest[0])
	if err != nil {
		return err
	}

	loc, found, err := a.resolver.FindFile(ctx, ref.Path, ref.Group)
	if err != nil {
		return err
	}
	if found {
		fmt.Fprintf(g.stdout, "local\t%s\t%s\n", loc.Group, filepath.Join(loc.Directory, filepath.FromSlash(ref.Path)))
		return nil
	}

	backendPath, exists, err := a.resolver.FileExists(ctx, ref)
	if err != nil {
		return err
	}
	if !exists {
		return &fserrors.Error{Code: fserrors.NotFound, Op: "locate", Path: ref.String(), Message: "file not found"}
	}
	fmt.Fprintf(g.stdout, "remote\t%s\t%s\n", ref.Host, backendPath)
	return nil
}

func runGroups(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("groups")
	if _, err := parseArgs(flags, args, 0, 0); err != nil {
		return err
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	registry := a.resolver.Registry()
	locs, err := registry.Locations(ctx, "")
	if err != nil {
		return err
	}
	locs = registry.WithFreeSpace(locs)

	w := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tHOST\tDIRECTORY\tLOCAL\tFREE")
	for _, loc := range locs {
		free := "-"
		if loc.FreeBytes != nil {
			free = humanize.IBytes(*loc.FreeBytes)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", loc.Group, loc.Host, loc.Directory, loc.IsLocal, free)
	}
	return w.Flush()
}

func runDF(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("df")
	port := flags.Int("port", 0, "Backend port (default: backend.port)")
	rest, err := parseArgs(flags, args, 1, 1)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.resolver.FreeSpaceList(ctx, rest[0], *port)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOST\tPATH\tTOTAL\tUSED\tFREE")
	for _, fs := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", fs.Host, fs.Path,
			kib(fs.TotalKB), kib(fs.UsedKB), kib(fs.FreeKB()))
	}
	return w.Flush()
}

func kib(v int64) string {
	if v < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(v) * 1024)
}

func runHash(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("hash")
	rest, err := parseArgs(flags, args, 1, 1)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := a.ref(ctx, rest[0])
	if err != nil {
		return err
	}
	hash, err := a.resolver.FileHash(ctx, ref)
	if err != nil {
		return err
	}
	fmt.Fprintln(g.stdout, hash)
	return nil
}

func runRm(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("rm")
	rest, err := parseArgs(flags, args, 1, 1)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := a.ref(ctx, rest[0])
	if err != nil {
		return err
	}
	deleted, err := a.resolver.DeleteFile(ctx, ref)
	if err != nil {
		return err
	}
	if !deleted {
		return &fserrors.Error{Code: fserrors.NotFound, Op: "rm", Path: ref.String(), Err: errors.New("backend did not delete the file")}
	}
	logger.Info("Deleted %s", ref)
	return nil
}
