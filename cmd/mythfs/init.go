package main

import (
	"context"
	"fmt"

	"github.com/marmos91/mythfs/pkg/config"
)

func runInit(ctx context.Context, g *globals, args []string) error {
	flags := newFlagSet("init")
	force := flags.BoolP("force", "f", false, "Overwrite an existing config file")
	configPath := flags.String("path", "", "Write to this path instead of the default location")
	if _, err := parseArgs(flags, args, 0, 0); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		path = g.configPath
	}

	if path != "" {
		if err := config.InitConfigToPath(path, *force); err != nil {
			return err
		}
	} else {
		var err error
		if path, err = config.InitConfig(*force); err != nil {
			return err
		}
	}

	fmt.Fprintf(g.stdout, "Configuration written to %s\n", path)
	return nil
}
