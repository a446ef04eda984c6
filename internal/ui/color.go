// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ui provides human-readable output helpers for the lazyjson CLI.
//
// Colors respect the --no-color flag and the NO_COLOR environment variable.
//
//   - Red: Errors, failures
//   - Yellow: Warnings, dry runs
//   - Green: Success
//   - Cyan: Counts and neutral info
//   - Bold: Headers, labels
//   - Dim: Paths, backend names
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// InitColors configures global color output. Call it once after parsing
// flags.
func InitColors(noColor bool) {
	color.NoColor = noColor || os.Getenv("NO_COLOR") != ""
}

// Printer writes status lines to a writer. A quiet Printer only prints
// errors.
type Printer struct {
	w     io.Writer
	quiet bool
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, quiet bool) *Printer {
	return &Printer{w: w, quiet: quiet}
}

// Stdout is the Printer used by commands that have no reason to pick
// another writer.
func Stdout(quiet bool) *Printer {
	return NewPrinter(os.Stdout, quiet)
}

func (p *Printer) line(c *color.Color, prefix, format string, args ...any) {
	_, _ = c.Fprintf(p.w, prefix+format+"\n", args...)
}

// Successf prints a green line with a checkmark.
//
// Example output: "✓ Synced 4 hashmaps"
func (p *Printer) Successf(format string, args ...any) {
	if p.quiet {
		return
	}
	p.line(Green, "✓ ", format, args...)
}

// Warningf prints a yellow line with a warning sign.
func (p *Printer) Warningf(format string, args ...any) {
	if p.quiet {
		return
	}
	p.line(Yellow, "⚠ ", format, args...)
}

// Errorf prints a red line. Errors are printed even when quiet.
func (p *Printer) Errorf(format string, args ...any) {
	p.line(Red, "✗ ", format, args...)
}

// Infof prints a cyan informational line.
func (p *Printer) Infof(format string, args ...any) {
	if p.quiet {
		return
	}
	p.line(Cyan, "ℹ ", format, args...)
}

// Header prints a bold header with an underline.
//
//	Sync to mongodb
//	===============
func (p *Printer) Header(text string) {
	if p.quiet {
		return
	}
	_, _ = Bold.Fprintln(p.w, text)
	fmt.Fprintln(p.w, strings.Repeat("=", len([]rune(text))))
}

// Field prints an indented "label value" pair.
func (p *Printer) Field(label string, value any) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.w, "  %s %v\n", Label(label), value)
}

// Label returns a bold string for inline use.
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText returns a dim string for less important text.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText returns a cyan count.
func CountText(count int) string {
	return Cyan.Sprint(count)
}

// DurationText rounds d for display.
func DurationText(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return Dim.Sprint(d.String())
	case d < time.Second:
		return Dim.Sprint(d.Round(time.Millisecond).String())
	default:
		return Dim.Sprint(d.Round(100 * time.Millisecond).String())
	}
}
