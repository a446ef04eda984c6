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
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/lazyjson/internal/ui"
	"github.com/kraklabs/lazyjson/pkg/storage"
	"github.com/kraklabs/lazyjson/pkg/syncer"
)

// ProgressConfig determines if and how progress should be displayed.
type ProgressConfig struct {
	// Enabled is false with --json or -q, or when stderr is not a TTY.
	Enabled bool

	// Writer is where progress output goes (always os.Stderr).
	Writer io.Writer

	NoColor bool
}

// NewProgressConfig creates a progress configuration based on global flags
// and TTY detection.
func NewProgressConfig(globals GlobalFlags) ProgressConfig {
	enabled := !globals.Quiet && !globals.JSON && isatty.IsTerminal(os.Stderr.Fd())

	return ProgressConfig{
		Enabled: enabled,
		Writer:  os.Stderr,
		NoColor: globals.NoColor,
	}
}

// NewProgressBar creates a progress bar with consistent styling.
// Returns nil if progress is disabled.
func NewProgressBar(cfg ProgressConfig, total int64, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}

	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// syncProgress shows one progress bar per hashmap and a summary line when
// the hashmap converges.
type syncProgress struct {
	cfg     ProgressConfig
	printer *ui.Printer
	bar     *progressbar.ProgressBar
}

func newSyncProgress(cfg ProgressConfig, printer *ui.Printer) *syncProgress {
	return &syncProgress{cfg: cfg, printer: printer}
}

func (p *syncProgress) HashmapStarted(h storage.Hashmap, toFetch int) {
	if toFetch == 0 {
		return
	}
	p.bar = NewProgressBar(p.cfg, int64(toFetch), string(h))
}

func (p *syncProgress) BatchDone(_ storage.Hashmap, n int) {
	if p.bar != nil {
		_ = p.bar.Add(n)
	}
}

func (p *syncProgress) HashmapDone(r syncer.HashmapResult) {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
	deleted, pushed := 0, 0
	for _, s := range r.Secondaries {
		deleted += s.Deleted
		pushed += s.Pushed
	}
	if deleted == 0 && pushed == 0 {
		p.printer.Successf("%s up to date (%s keys) %s", r.Hashmap, ui.CountText(r.PrimaryKeys), ui.DurationText(r.Duration))
		return
	}
	p.printer.Successf("%s: pushed %s, deleted %s %s",
		r.Hashmap, ui.CountText(pushed), ui.CountText(deleted), ui.DurationText(r.Duration))
}

var _ syncer.Reporter = (*syncProgress)(nil)
