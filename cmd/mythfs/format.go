package main

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/mythfs/pkg/resolver"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

func runFormat(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("format")

	var rec resolver.Recording
	flags.StringVar(&rec.Title, "title", "", "Title (%T)")
	flags.StringVar(&rec.Subtitle, "subtitle", "", "Subtitle (%S)")
	flags.StringVar(&rec.Description, "description", "", "Description (%R)")
	flags.StringVar(&rec.Category, "category", "", "Category (%C)")
	flags.StringVar(&rec.RecGroup, "recgroup", "", "Recording group (%U)")
	flags.StringVar(&rec.Hostname, "hostname", "", "Hostname (%hn)")
	flags.Int64Var(&rec.ChanID, "chanid", 0, "Channel ID (%c)")
	flags.StringVar(&rec.Basename, "basename", "", "Stored file name; its extension is appended")
	replace := flags.String("replace", "", "Replace characters that are invalid in Windows file names with this string")

	times := []struct {
		name, help string
		dst        *time.Time
	}{
		{"start", "Recording start (%y %Y %m %d %H %i ...)", &rec.StartTime},
		{"end", "Recording end (%e...)", &rec.EndTime},
		{"prog-start", "Programme start (%p...)", &rec.ProgStart},
		{"prog-end", "Programme end (%pe...)", &rec.ProgEnd},
		{"airdate", "Original air date (%o...)", &rec.OriginalAirDate},
	}
	raw := make([]*string, len(times))
	for i, t := range times {
		raw[i] = flags.String(t.name, "", t.help)
	}

	rest, err := parseArgs(flags, args, 1, 1)
	if err != nil {
		return err
	}

	for i, t := range times {
		if *raw[i] == "" {
			continue
		}
		if *t.dst, err = parseTime(*raw[i]); err != nil {
			return usagef("--%s: %v", t.name, err)
		}
	}

	fmt.Fprintln(g.stdout, resolver.FormatPath(rest[0], rec, *replace))
	return nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a time", s)
}

