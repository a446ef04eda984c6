// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package output writes machine-readable CLI output.
//
// Command results (sync summaries, key listings) are encoded with JSON or
// JSONTo when --json is set. Stored documents are already canonical JSON
// text and are copied verbatim with Document:
//
//	text, err := backend.Get(ctx, storage.PRInfo, "numpy")
//	...
//	return output.Document(os.Stdout, text)
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// JSON writes data as pretty-printed JSON to stdout.
func JSON(data any) error {
	return JSONTo(os.Stdout, data)
}

// JSONTo writes data as JSON with 2-space indentation to w.
func JSONTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// Document copies stored document text to w, ending it with a newline.
func Document(w io.Writer, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	_, err := io.WriteString(w, text)
	return err
}

// Lines writes one item per line, as used for key listings in text mode.
func Lines(w io.Writer, items []string) error {
	for _, it := range items {
		if _, err := fmt.Fprintln(w, it); err != nil {
			return err
		}
	}
	return nil
}
