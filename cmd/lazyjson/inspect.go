// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/lazyjson/internal/errors"
	"github.com/kraklabs/lazyjson/internal/output"
	"github.com/kraklabs/lazyjson/pkg/codec"
	"github.com/kraklabs/lazyjson/pkg/lazyjson"
	"github.com/kraklabs/lazyjson/pkg/storage"
)

// parseArgs parses a command without options of its own and checks the
// positional argument count.
func parseArgs(name, synopsis, help string, args []string, minArgs, maxArgs int) ([]string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lazyjson %s %s\n\n%s\n", name, synopsis, help)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	rest := fs.Args()
	if len(rest) < minArgs || (maxArgs >= 0 && len(rest) > maxArgs) {
		return nil, errors.NewInputError(
			fmt.Sprintf("Wrong number of arguments for %s", name),
			fmt.Sprintf("got %d", len(rest)),
			"Usage: lazyjson "+name+" "+synopsis,
		)
	}
	return rest, nil
}

// runKeys executes 'keys <hashmap>', listing the primary's keys.
func runKeys(ctx context.Context, app *App, args []string) error {
	rest, err := parseArgs("keys", "<hashmap>", "Lists the keys of a hashmap in the primary backend.", args, 1, 1)
	if err != nil {
		return err
	}
	h, err := storage.ParseHashmap(rest[0])
	if err != nil {
		return err
	}
	env, _, err := app.openEnv(ctx, nil)
	if err != nil {
		return err
	}
	defer app.closeEnv(ctx, env)

	keys, err := env.Store.ListKeys(ctx, h)
	if err != nil {
		return err
	}
	if app.Globals.JSON {
		if keys == nil {
			keys = []string{}
		}
		return output.JSONTo(app.Stdout, keys)
	}
	return output.Lines(app.Stdout, keys)
}

// runGet executes 'get <name>'. The document is loaded through the cache
// like any other read, so a cache miss fills the cache.
func runGet(ctx context.Context, app *App, args []string) error {
	rest, err := parseArgs("get", "<hashmap>/<key>.json", "Prints a document in canonical form.", args, 1, 1)
	if err != nil {
		return err
	}
	name := rest[0]
	h, key, err := lazyjson.ParseName(name)
	if err != nil {
		return errors.NewInputError("Invalid document name "+fmt.Sprintf("%q", name), err.Error(),
			"Use <hashmap>/<key>.json, or <key>.json for the lazy_json hashmap")
	}
	env, _, err := app.openEnv(ctx, nil)
	if err != nil {
		return err
	}
	defer app.closeEnv(ctx, env)

	// Reading a missing document would create it.
	ok, err := env.Store.Primary().Exists(ctx, h, key)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewNotFoundError(
			"Document "+name+" not found",
			"The "+env.Store.Primary().Name()+" backend has no key "+fmt.Sprintf("%q", key)+" in "+h.String(),
			"List existing keys with: lazyjson keys "+h.String(),
		)
	}

	doc, err := env.Store.OpenNode(ctx, h, key)
	if err != nil {
		return err
	}
	data, err := doc.Data(ctx)
	if err != nil {
		return err
	}
	doc.Purge()
	text, err := codec.MarshalString(data)
	if err != nil {
		return err
	}
	return output.Document(app.Stdout, text)
}

// runHash executes 'hash <hashmap>', printing key and content hash pairs
// from the primary.
func runHash(ctx context.Context, app *App, args []string) error {
	rest, err := parseArgs("hash", "<hashmap>", "Prints the content hash of every key in a hashmap.", args, 1, 1)
	if err != nil {
		return err
	}
	h, err := storage.ParseHashmap(rest[0])
	if err != nil {
		return err
	}
	env, _, err := app.openEnv(ctx, nil)
	if err != nil {
		return err
	}
	defer app.closeEnv(ctx, env)

	var hashes map[string]string
	err = env.Store.Snapshot(ctx, func(ctx context.Context) error {
		var err error
		hashes, err = env.Store.Primary().GetAll(ctx, h, true)
		return err
	})
	if err != nil {
		return err
	}
	if app.Globals.JSON {
		return output.JSONTo(app.Stdout, hashes)
	}
	lines := make([]string, 0, len(hashes))
	for _, k := range slices.Sorted(maps.Keys(hashes)) {
		lines = append(lines, hashes[k]+"  "+k)
	}
	return output.Lines(app.Stdout, lines)
}

// runRemove executes 'rm <hashmap> <key>...'. Each key is removed from
// every backend and the cache.
func runRemove(ctx context.Context, app *App, args []string) error {
	rest, err := parseArgs("rm", "<hashmap> <key>...", "Deletes keys from every backend and the file cache.", args, 2, -1)
	if err != nil {
		return err
	}
	h, err := storage.ParseHashmap(rest[0])
	if err != nil {
		return err
	}
	release, err := app.lockGraph(ctx, 0)
	if err != nil {
		return err
	}
	defer release()
	env, _, err := app.openEnv(ctx, nil)
	if err != nil {
		return err
	}
	defer app.closeEnv(ctx, env)

	for _, key := range rest[1:] {
		if err := env.Store.RemoveKey(ctx, h, key); err != nil {
			return err
		}
		app.Printer.Successf("removed %s", lazyjson.NodeName(h, key))
	}
	return nil
}
