// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kraklabs/lazyjson/internal/errors"
)

const lockFileName = "sync.lock"

// WriteLock keeps two lazyjson processes from writing the same graph at
// once. It is an advisory flock on a file next to the configuration; the
// holder's PID and start time are written into it for diagnostics.
type WriteLock struct {
	path string
	file *os.File
}

// LockInfo describes the current lock holder.
type LockInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// NewWriteLock returns the lock for the configuration at configPath. An
// empty configPath means DefaultConfigPath.
func NewWriteLock(configPath string) (*WriteLock, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &WriteLock{path: filepath.Join(dir, lockFileName)}, nil
}

// Path returns the lock file path.
func (l *WriteLock) Path() string { return l.path }

// TryAcquire takes the lock without blocking. It reports false when
// another process holds it.
func (l *WriteLock) TryAcquire() (bool, error) {
	if l.file != nil {
		return true, nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d %d\n", os.Getpid(), time.Now().Unix()); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("write lock file: %w", err)
	}

	l.file = f
	return true, nil
}

// Acquire retries TryAcquire until it succeeds, wait elapses or ctx is
// done. A zero wait tries once. Failing to get the lock in time is
// reported as a UserError naming the holder.
func (l *WriteLock) Acquire(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.TryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return l.busyError()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (l *WriteLock) busyError() error {
	cause := "Another lazyjson process is writing this graph"
	if info, err := l.Info(); err == nil && info != nil {
		cause = fmt.Sprintf("Process %d has been writing this graph since %s",
			info.PID, info.StartedAt.Format(time.RFC3339))
	}
	return errors.NewStorageError("Graph is locked", cause,
		"Wait for it to finish, or pass --wait to block until it does", nil)
}

// Release drops the lock. Calling it without holding the lock is a no-op.
func (l *WriteLock) Release() {
	if l.file != nil {
		_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
		_ = l.file.Close()
		l.file = nil
	}
}

// Info returns the recorded holder, or nil if the lock file is absent or
// empty.
func (l *WriteLock) Info() (*LockInfo, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var pid int
	var ts int64
	if _, err := fmt.Sscanf(string(data), "%d %d", &pid, &ts); err != nil {
		return nil, fmt.Errorf("parse lock info: %w", err)
	}
	return &LockInfo{PID: pid, StartedAt: time.Unix(ts, 0)}, nil
}
