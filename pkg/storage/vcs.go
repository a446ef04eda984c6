// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrNotRepository is returned by a Remover when the directory is not under
// version control. The file backend ignores it.
var ErrNotRepository = errors.New("not a version-controlled tree")

// Remover deletes tracked files through the version-control system so the
// working tree stays clean.
type Remover interface {
	Remove(ctx context.Context, dir string, paths []string) error
}

// GitRemover runs "git rm" in the backend root.
type GitRemover struct {
	// Git is the git executable. Defaults to "git" on PATH.
	Git string
}

// Remove implements Remover. Paths git does not track are skipped.
func (g GitRemover) Remove(ctx context.Context, dir string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	bin := g.Git
	if bin == "" {
		bin = "git"
	}
	args := append([]string{"rm", "-f", "-q", "--ignore-unmatch", "--"}, paths...)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	out = bytes.TrimSpace(out)
	if bytes.Contains(bytes.ToLower(out), []byte("not a git repository")) {
		return fmt.Errorf("%w: %s", ErrNotRepository, out)
	}
	return fmt.Errorf("git rm: %w: %s", err, out)
}

// NopRemover does nothing. It backs file trees that are not on disk.
type NopRemover struct{}

// Remove implements Remover.
func (NopRemover) Remove(context.Context, string, []string) error { return nil }
