// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/lazyjson/internal/errors"
	"github.com/kraklabs/lazyjson/internal/output"
	"github.com/kraklabs/lazyjson/internal/ui"
	"github.com/kraklabs/lazyjson/pkg/lazyjson"
	"github.com/kraklabs/lazyjson/pkg/storage"
	"github.com/kraklabs/lazyjson/pkg/syncer"
)

type syncFlags struct {
	batchSize int
	dryRun    bool
	hashmaps  []string
	wait      time.Duration
}

func parseSyncFlags(name, help string, args []string) (syncFlags, error) {
	var f syncFlags
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.IntVar(&f.batchSize, "batch-size", 0, "Keys copied per round trip (default: sync.batch_size)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Report what would change without writing")
	fs.StringSliceVar(&f.hashmaps, "hashmap", nil, "Only sync these hashmaps (repeatable)")
	fs.DurationVar(&f.wait, "wait", 0, "How long to wait for another running sync to finish")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lazyjson %s [options]\n\n%s\n\nOptions:\n", name, help)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, errors.NewInputError("Unexpected arguments", fmt.Sprint(fs.Args()), "lazyjson "+name+" takes no arguments")
	}
	if f.batchSize < 0 {
		return f, errors.NewInputError("Invalid --batch-size", fmt.Sprintf("%d is negative", f.batchSize), "Use a positive number")
	}
	return f, nil
}

func (f syncFlags) options() ([]syncer.Option, error) {
	opts := []syncer.Option{syncer.WithDryRun(f.dryRun)}
	if len(f.hashmaps) > 0 {
		hs := make([]storage.Hashmap, 0, len(f.hashmaps))
		for _, s := range f.hashmaps {
			h, err := storage.ParseHashmap(s)
			if err != nil {
				return nil, err
			}
			hs = append(hs, h)
		}
		opts = append(opts, syncer.WithHashmaps(hs...))
	}
	return opts, nil
}

// runSync executes 'sync': every backend after the primary is brought in
// line with it.
//
//	lazyjson sync
//	lazyjson sync --hashmap pr_info --dry-run
func runSync(ctx context.Context, app *App, args []string) error {
	return syncCommand(ctx, app, "sync",
		"Pushes the primary backend's state to every other configured backend.",
		args, (*lazyjson.Store).Sync)
}

// runCache executes 'cache': only the local file cache is synced.
func runCache(ctx context.Context, app *App, args []string) error {
	return syncCommand(ctx, app, "cache",
		"Pushes the primary backend's state to the local file cache.",
		args, (*lazyjson.Store).SyncToCache)
}

type syncFunc func(s *lazyjson.Store, ctx context.Context, batchSize int, opts ...syncer.Option) (syncer.Result, error)

func syncCommand(ctx context.Context, app *App, name, help string, args []string, sync syncFunc) error {
	f, err := parseSyncFlags(name, help, args)
	if err != nil {
		return err
	}
	opts, err := f.options()
	if err != nil {
		return err
	}

	if !f.dryRun {
		release, err := app.lockGraph(ctx, f.wait)
		if err != nil {
			return err
		}
		defer release()
	}

	progress := newSyncProgress(NewProgressConfig(app.Globals), app.Printer)
	env, cfg, err := app.openEnv(ctx, progress)
	if err != nil {
		return err
	}
	defer app.closeEnv(ctx, env)

	batch := f.batchSize
	if batch == 0 {
		batch = cfg.Sync.BatchSize
	}
	if f.dryRun {
		app.Printer.Warningf("dry run: nothing will be written")
	}
	res, err := sync(env.Store, ctx, batch, opts...)
	if err != nil {
		return err
	}

	if app.Globals.JSON {
		return output.JSONTo(app.Stdout, res)
	}
	deleted, pushed := res.Totals()
	app.Printer.Header(fmt.Sprintf("%s from %s", name, env.Store.Primary().Name()))
	app.Printer.Field("hashmaps:", ui.CountText(len(res.Hashmaps)))
	app.Printer.Field("pushed:", ui.CountText(pushed))
	app.Printer.Field("deleted:", ui.CountText(deleted))
	if len(res.Hashmaps) == 0 {
		app.Printer.Infof("nothing to sync with backends %v", cfg.Backends)
	}
	return nil
}
