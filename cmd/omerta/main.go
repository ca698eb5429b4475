// Command omerta runs the Omerta token program on a local ledger: it
// initializes the capped mint, submits token instructions and serves the
// ledger over JSON-RPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/metrics"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildTime = "unknown"
)

func newLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("omerta", flag.ContinueOnError)
	fs.SetOutput(stderr)
	g := registerGlobalFlags(fs)
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *g.showVersion {
		fmt.Fprintf(stdout, "omerta %s (%s)\nBuild time: %s\n", Version, GitCommit, BuildTime)
		return 0
	}

	args := fs.Args()
	if len(args) == 0 {
		printUsage(stderr, fs)
		return 2
	}
	cmd := findCommand(args[0])
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr, fs)
		return 2
	}

	cfg, found, err := loadConfig(*g.configFile, *g.envFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	applyConfigWithCLIOverrides(fs, g, &cfg)

	logger, err := newLogger(stderr, cfg.General.LogLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if found {
		logger.Debug().Str("path", *g.configFile).Msg("loaded configuration file")
	}

	e := &env{cfg: cfg, logger: logger, out: stdout}
	ctx := context.Background()

	var n *node
	if !cmd.offline {
		n, err = openNode(ctx, cfg, logger, metrics.New())
		if err != nil {
			logger.Error().Err(err).Msg("failed to open ledger")
			return 1
		}
		defer func() {
			if err := n.Close(); err != nil {
				logger.Warn().Err(err).Msg("close ledger")
			}
		}()
	}

	cmdFlags := newFlagSet(cmd)
	cmdFlags.SetOutput(stderr)
	if err := cmd.run(ctx, e, n, cmdFlags, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		logger.Error().Err(err).Str("command", cmd.name).Msg("command failed")
		return 1
	}
	return 0
}
