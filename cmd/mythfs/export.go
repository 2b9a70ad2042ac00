package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/mythfs/pkg/config"
	"github.com/marmos91/mythfs/pkg/file"
	"github.com/marmos91/mythfs/pkg/resolver"
)

func runExport(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("export")
	bucket := flags.String("bucket", "", "Bucket to upload to (default: export.s3.bucket)")
	remote := flags.Bool("remote", false, "Always read through the backend")
	rest, err := parseArgs(flags, args, 1, 2)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()

	exporter, err := config.CreateExporter(ctx, &a.cfg.Export, *bucket, a.metrics.Export)
	if err != nil {
		return err
	}

	h, err := a.resolver.Open(ctx, rest[0], file.ModeRead, resolver.OpenOptions{ForceRemote: *remote})
	if err != nil {
		return err
	}
	defer h.Close()

	var key string
	if len(rest) == 2 {
		key = rest[1]
	}
	res, err := exporter.Export(ctx, h, key)
	if err != nil {
		return err
	}

	fmt.Fprintf(g.stdout, "%s\t%s\n", res.Key, humanize.IBytes(uint64(res.Bytes)))
	return nil
}
