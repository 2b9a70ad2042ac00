package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/marmos91/mythfs/pkg/fserrors"
	"github.com/spf13/pflag"
)

// command is one mythfs subcommand.
type command struct {
	usage   string
	summary string
	run     func(ctx context.Context, g *globals, args []string) error
}

// commands is filled in by init: the subcommands refer back to it for their
// usage lines.
var commands map[string]command

func init() {
	commands = map[string]command{
		"cat":     {"cat [--remote] [--offset N] [--chanid ID --starttime T] <uri>", "Write a file to stdout", runCat},
		"get":     {"get [--remote] [--chanid ID --starttime T] <uri> [dest]", "Copy a file to the local filesystem", runGet},
		"put":     {"put [--remote] [--no-overwrite] <src> <uri>", "Copy a local file to a storage group", runPut},
		"locate":  {"locate <uri>", "Show where a file would be read from", runLocate},
		"groups":  {"groups", "List storage groups and their directories", runGroups},
		"df":      {"df [--port N] <host>", "Show free space of a backend's storage directories", runDF},
		"hash":    {"hash <uri>", "Print the backend's hash of a file", runHash},
		"rm":      {"rm <uri>", "Delete a file through the backend", runRm},
		"export":  {"export [--bucket B] [--remote] <uri> [key]", "Upload a file to S3", runExport},
		"catalog": {"catalog <list|add|remove|set-ip> ...", "Manage the storage-group catalog", runCatalog},
		"format":  {"format [flags] <pattern>", "Expand a recording file name pattern", runFormat},
		"init":    {"init [--force] [--path P]", "Write a sample configuration file", runInit},
	}
}

// globals holds the flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	metrics    bool

	stdout io.Writer
}

// usageError is returned for bad command lines.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	g := &globals{stdout: stdout}

	flags := pflag.NewFlagSet("mythfs", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.StringVarP(&g.configPath, "config", "c", "", "Path to config file (default: $XDG_CONFIG_HOME/mythfs/config.yaml)")
	flags.StringVar(&g.logLevel, "log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")
	flags.BoolVar(&g.metrics, "metrics", false, "Serve Prometheus metrics while the command runs")
	flags.Usage = func() { printUsage(flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &usageError{msg: err.Error()}
	}

	if flags.NArg() == 0 {
		printUsage(flags)
		return usagef("no command given")
	}

	name := flags.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		return usagef("unknown command %q (run 'mythfs --help')", name)
	}
	if err := cmd.run(ctx, g, flags.Args()[1:]); !errors.Is(err, pflag.ErrHelp) {
		return err
	}
	return nil
}

func printUsage(flags *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "mythfs - remote file access for MythTV storage groups\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n  mythfs [global flags] <command> [flags] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", name, commands[name].summary)
	}

	fmt.Fprintf(os.Stderr, "\nURIs have the form myth://[group@]host[:port]/path\n\n")
	fmt.Fprintf(os.Stderr, "Global flags:\n%s", flags.FlagUsages())
}

// newFlagSet creates the flag set of a subcommand.
func newFlagSet(name string) *pflag.FlagSet {
	cmd := commands[name]
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: mythfs %s\n\n%s\n\n%s", cmd.usage, cmd.summary, flags.FlagUsages())
	}
	return flags
}

// parseArgs parses a subcommand's flags and checks its positional argument
// count.
func parseArgs(flags *pflag.FlagSet, args []string, minArgs, maxArgs int) ([]string, error) {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, &usageError{msg: err.Error()}
	}
	rest := flags.Args()
	if len(rest) < minArgs || (maxArgs >= 0 && len(rest) > maxArgs) {
		return nil, usagef("usage: mythfs %s", commands[flags.Name()].usage)
	}
	return rest, nil
}

// exitCode maps errors to process exit codes: 2 for usage errors, 3 for
// configuration errors, 4 for files that exist or do not, 1 otherwise.
func exitCode(err error) int {
	var ue *usageError
	switch {
	case errors.As(err, &ue), errors.Is(err, fserrors.ErrInvalidArgument):
		return 2
	case errors.Is(err, fserrors.ErrConfiguration):
		return 3
	case errors.Is(err, fserrors.ErrNotFound), errors.Is(err, fserrors.ErrOverwriteConflict):
		return 4
	default:
		return 1
	}
}
