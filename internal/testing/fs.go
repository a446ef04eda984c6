// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package testing

import (
	"os"
	"sync"

	"github.com/spf13/afero"
)

// CountingFs wraps an afero.Fs and counts completed file writes: renames
// into place and exclusive creates outside temp files.
type CountingFs struct {
	afero.Fs

	mu     sync.Mutex
	writes int
}

// NewCountingFs wraps fsys.
func NewCountingFs(fsys afero.Fs) *CountingFs {
	return &CountingFs{Fs: fsys}
}

// Rename counts a write once the rename succeeds.
func (c *CountingFs) Rename(oldname, newname string) error {
	if err := c.Fs.Rename(oldname, newname); err != nil {
		return err
	}
	c.count()
	return nil
}

// OpenFile counts exclusive creates of documents. Temp files are only
// counted when they are renamed.
func (c *CountingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := c.Fs.OpenFile(name, flag, perm)
	if err == nil && flag&os.O_EXCL != 0 && flag&os.O_WRONLY != 0 {
		c.count()
	}
	return f, err
}

func (c *CountingFs) count() {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
}

// Writes returns the number of writes since the last Reset.
func (c *CountingFs) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Reset zeroes the counter.
func (c *CountingFs) Reset() {
	c.mu.Lock()
	c.writes = 0
	c.mu.Unlock()
}
