// Command transcache serves and maintains a cached translation store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Build-time variables (can be overridden with ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

const usage = `usage: transcache [--config FILE] <command> [flags]

commands:
  serve      run the HTTP API
  migrate    apply schema migrations
  generate   bulk-insert synthetic translations; clears a shared (redis)
             cache afterwards, in-process caches expire by TTL
  export     write message files per locale
  version    print the version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("transcache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "TOML config file (default: $TRANSCACHE_CONFIG)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "serve":
		return runServe(ctx, *configPath, rest, stderr)
	case "migrate":
		return runMigrate(ctx, *configPath, rest, stdout, stderr)
	case "generate":
		return runGenerate(ctx, *configPath, rest, stdout, stderr)
	case "export":
		return runExport(ctx, *configPath, rest, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "transcache %s\n", version)
		if commit != "unknown" && commit != "" {
			fmt.Fprintf(stdout, "  commit:  %s\n", commit)
		}
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// subFlags returns a FlagSet for a subcommand that reports to stderr.
func subFlags(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("transcache "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}
