// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Command lazyjson inspects and synchronizes a lazyjson graph.
//
// Usage:
//
//	lazyjson [global options] <command> [options]
//
// Commands:
//
//	sync     Push the primary backend's state to every other backend
//	cache    Push the primary backend's state to the local file cache
//	keys     List the keys of a hashmap
//	get      Print a document
//	hash     Print the content hash of every key in a hashmap
//	rm       Delete keys from every backend
//	completion  Print a shell completion script
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/lazyjson/internal/bootstrap"
	"github.com/kraklabs/lazyjson/internal/errors"
	"github.com/kraklabs/lazyjson/internal/output"
	"github.com/kraklabs/lazyjson/internal/ui"
	"github.com/kraklabs/lazyjson/pkg/syncer"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GlobalFlags are the options accepted before the command name.
type GlobalFlags struct {
	ConfigPath  string
	Debug       bool
	NoColor     bool
	JSON        bool
	Quiet       bool
	MetricsAddr string
}

// openBackends builds the Store for a command.
var openBackends = bootstrap.Open

// command runs one subcommand. args excludes the command name.
type command func(ctx context.Context, app *App, args []string) error

var commands = map[string]command{
	"sync":  runSync,
	"cache": runCache,
	"keys":  runKeys,
	"get":   runGet,
	"hash":  runHash,
	"rm":    runRemove,

	"completion": runCompletion,
}

// commandOrder lists commands as shown in help and completions.
var commandOrder = []string{"sync", "cache", "keys", "get", "hash", "rm", "completion"}

const usage = `lazyjson - lazily loaded JSON graph storage

Usage:
  lazyjson [global options] <command> [options]

Commands:
  sync      Push the primary backend's state to every other backend
  cache     Push the primary backend's state to the local file cache
  keys      List the keys of a hashmap
  get       Print a document (<hashmap>/<key>.json)
  hash      Print the content hash of every key in a hashmap
  rm        Delete keys from every backend
  completion  Generate shell completion script (bash|zsh|fish)

Global Options:
`

const usageFooter = `
Environment Variables:
  LAZYJSON_BACKENDS          Colon separated backends, primary first (file:mongodb)
  MONGODB_CONNECTION_STRING  MongoDB URI for the mongodb backend
  NO_COLOR                   Disable colored output

For command help: lazyjson <command> --help
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	var g GlobalFlags
	showVersion := false

	fs := flag.NewFlagSet("lazyjson", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(stderr)
	fs.StringVar(&g.ConfigPath, "config", "", "Path to config file (default: "+DefaultConfigPath+")")
	fs.BoolVar(&g.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&g.NoColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&g.JSON, "json", false, "Output as JSON")
	fs.BoolVarP(&g.Quiet, "quiet", "q", false, "Only print errors and results")
	fs.StringVar(&g.MetricsAddr, "metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	fs.BoolVar(&showVersion, "version", false, "Show version and exit")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
		fmt.Fprint(stderr, usageFooter)
	}

	if err := fs.Parse(argv); err != nil {
		if err == flag.ErrHelp {
			return errors.ExitSuccess
		}
		return errors.ExitInput
	}

	if showVersion {
		fmt.Fprintf(stdout, "lazyjson version %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		return errors.ExitSuccess
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return errors.ExitInput
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		fs.Usage()
		return errors.ExitInput
	}

	ui.InitColors(g.NoColor)
	logger := newLogger(stderr, g)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if g.MetricsAddr != "" {
		shutdown := serveMetrics(g.MetricsAddr, logger)
		defer shutdown()
	}

	app := &App{
		Globals: g,
		Stdout:  stdout,
		Printer: ui.NewPrinter(stderr, g.Quiet || g.JSON),
		Logger:  logger,
		Getenv:  os.Getenv,
		Open:    openBackends,
	}
	err := cmd(ctx, app, args[1:])
	if err == nil {
		return errors.ExitSuccess
	}
	if err == flag.ErrHelp {
		return errors.ExitSuccess
	}
	ue := errors.Classify("lazyjson "+args[0]+" failed", err)
	if g.JSON {
		_ = output.JSONTo(stderr, ue.ToJSON())
	} else {
		fmt.Fprint(stderr, ue.Format(g.NoColor))
	}
	return ue.ExitCode
}

func newLogger(w io.Writer, g GlobalFlags) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case g.Debug:
		level = slog.LevelDebug
	case g.Quiet || g.JSON:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// App carries what every command needs.
type App struct {
	Globals GlobalFlags
	Stdout  io.Writer
	Printer *ui.Printer
	Logger  *slog.Logger
	Getenv  func(string) string

	// Open overrides how the Store is built. Nil uses bootstrap.Open.
	Open func(ctx context.Context, cfg bootstrap.Config, logger *slog.Logger) (*bootstrap.Env, error)
}

// openEnv loads configuration and opens the configured backends.
func (a *App) openEnv(ctx context.Context, reporter syncer.Reporter) (*bootstrap.Env, *Config, error) {
	cfg, err := LoadConfig(a.Globals.ConfigPath, a.Getenv)
	if err != nil {
		return nil, nil, err
	}
	bc := cfg.Bootstrap()
	bc.SyncReporter = reporter
	open := a.Open
	if open == nil {
		open = bootstrap.Open
	}
	env, err := open(ctx, bc, a.Logger)
	if err != nil {
		return nil, nil, errors.Classify("Cannot open backends", err)
	}
	return env, cfg, nil
}

// lockGraph takes the cross-process write lock for the configured graph.
func (a *App) lockGraph(ctx context.Context, wait time.Duration) (release func(), err error) {
	l, err := NewWriteLock(a.Globals.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := l.Acquire(ctx, wait); err != nil {
		return nil, err
	}
	a.Logger.Debug("lock.acquired", "path", l.Path())
	return l.Release, nil
}

func (a *App) closeEnv(ctx context.Context, env *bootstrap.Env) {
	if err := env.Close(context.WithoutCancel(ctx)); err != nil {
		a.Logger.Warn("bootstrap.close.error", "err", err)
	}
}
