package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/marmos91/mythfs/internal/logger"
	"github.com/marmos91/mythfs/pkg/catalog"
	"github.com/marmos91/mythfs/pkg/config"
)

const catalogUsage = `usage: mythfs catalog <command>

Commands:
  list [--group G]                 List storage locations
  add <group> <host> <directory>   Add a storage location
  remove <id>                      Remove a storage location
  set-ip <host> <ip>               Record the BackendServerIP of a host`

func runCatalog(ctx context.Context, g *globals, args []string) error {
	if len(args) == 0 {
		return usagef(catalogUsage)
	}

	sub, args := args[0], args[1:]
	flags := newFlagSet("catalog")
	group := flags.String("group", "", "Only list locations of this group")

	var (
		rest []string
		err  error
	)
	switch sub {
	case "list":
		rest, err = parseArgs(flags, args, 0, 0)
	case "add":
		rest, err = parseArgs(flags, args, 3, 3)
	case "remove":
		rest, err = parseArgs(flags, args, 1, 1)
	case "set-ip":
		rest, err = parseArgs(flags, args, 2, 2)
	default:
		return usagef("unknown catalog command %q\n\n%s", sub, catalogUsage)
	}
	if err != nil {
		return err
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	store, err := config.CreateCatalogStore(ctx, &cfg.Catalog)
	if err != nil {
		return err
	}
	defer store.Close()

	if sub != "list" && cfg.Catalog.Type == "memory" {
		logger.Warn("The memory catalog is not persisted; edit catalog.memory in the config file instead")
	}

	switch sub {
	case "list":
		return listLocations(ctx, g, store, *group)
	case "add":
		loc, err := store.AddLocation(ctx, catalog.Location{Group: rest[0], Host: rest[1], Directory: rest[2]})
		if err != nil {
			return err
		}
		fmt.Fprintln(g.stdout, loc.ID)
		return nil
	case "remove":
		return store.RemoveLocation(ctx, rest[0])
	default:
		return store.SetHostIP(ctx, rest[0], rest[1])
	}
}

func listLocations(ctx context.Context, g *globals, store catalog.Store, group string) error {
	locs, err := store.ListLocations(ctx, group)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGROUP\tHOST\tDIRECTORY")
	for _, loc := range locs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", loc.ID, loc.Group, loc.Host, loc.Directory)
	}
	return w.Flush()
}
