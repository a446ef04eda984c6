// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/kraklabs/lazyjson/pkg/storage"
)

func TestUserError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want string
	}{
		{
			name: "with underlying error",
			err:  &UserError{Message: "Cannot write pr_info/numpy.json", Err: fmt.Errorf("disk full")},
			want: "Cannot write pr_info/numpy.json: disk full",
		},
		{
			name: "without underlying error",
			err:  &UserError{Message: "Invalid document name"},
			want: "Invalid document name",
		},
		{
			name: "empty message with underlying error",
			err:  &UserError{Err: fmt.Errorf("some error")},
			want: ": some error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("UserError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("underlying error")
	err := NewStorageError("Cannot sync", "", "", inner)
	if !errors.Is(err, inner) {
		t.Errorf("errors.Is(%v, inner) = false", err)
	}
	if got := (&UserError{Message: "x"}).Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}
}

func TestExitCodes_Uniqueness(t *testing.T) {
	codes := []int{ExitSuccess, ExitConfig, ExitStorage, ExitNetwork, ExitInput, ExitPermission, ExitNotFound, ExitInternal}
	seen := make(map[int]bool)
	for _, c := range codes {
		if seen[c] {
			t.Errorf("duplicate exit code %d", c)
		}
		seen[c] = true
	}
}

func TestConstructors(t *testing.T) {
	inner := errors.New("inner")
	tests := []struct {
		name     string
		err      *UserError
		wantCode int
		wantErr  bool
	}{
		{"config", NewConfigError("m", "c", "f", inner), ExitConfig, true},
		{"storage", NewStorageError("m", "c", "f", inner), ExitStorage, true},
		{"network", NewNetworkError("m", "c", "f", inner), ExitNetwork, true},
		{"input", NewInputError("m", "c", "f"), ExitInput, false},
		{"permission", NewPermissionError("m", "c", "f", inner), ExitPermission, true},
		{"not found", NewNotFoundError("m", "c", "f"), ExitNotFound, false},
		{"internal", NewInternalError("m", "c", "f", inner), ExitInternal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", tt.err.ExitCode, tt.wantCode)
			}
			if tt.err.Message != "m" || tt.err.Cause != "c" || tt.err.Fix != "f" {
				t.Errorf("fields not set: %+v", tt.err)
			}
			if (tt.err.Err != nil) != tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", tt.err.Err, tt.wantErr)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"missing document", fmt.Errorf("load: %w", storage.ErrNotFound), ExitNotFound},
		{"bad hashmap", fmt.Errorf("%w: %q", storage.ErrUnknownHashmap, "nope"), ExitInput},
		{"permission", &fs.PathError{Op: "open", Path: "/graph", Err: fs.ErrPermission}, ExitPermission},
		{"deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), ExitNetwork},
		{"closed backend", storage.ErrClosed, ExitInternal},
		{"anything else", errors.New("write refused"), ExitStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("Cannot run command", tt.err)
			if got.ExitCode != tt.wantCode {
				t.Errorf("Classify().ExitCode = %d, want %d", got.ExitCode, tt.wantCode)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("Classify() lost the original error")
			}
			if got.Message != "Cannot run command" {
				t.Errorf("Message = %q", got.Message)
			}
		})
	}

	t.Run("nil", func(t *testing.T) {
		if Classify("x", nil) != nil {
			t.Error("Classify(nil) should be nil")
		}
	})

	t.Run("user error passes through", func(t *testing.T) {
		ue := NewConfigError("bad config", "", "", nil)
		if got := Classify("other", fmt.Errorf("wrapped: %w", ue)); got != ue {
			t.Errorf("Classify() = %v, want the wrapped UserError", got)
		}
	})

	t.Run("hashmap fix lists names", func(t *testing.T) {
		got := Classify("x", storage.ErrUnknownHashmap)
		if !strings.Contains(got.Fix, "node_attrs") || !strings.Contains(got.Fix, "lazy_json") {
			t.Errorf("Fix = %q", got.Fix)
		}
	})
}

func TestUserError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want []string
	}{
		{
			name: "full error",
			err: &UserError{
				Message:  "Cannot connect to MongoDB",
				Cause:    "Connection refused",
				Fix:      "Start the server",
				ExitCode: ExitNetwork,
			},
			want: []string{"Error: Cannot connect to MongoDB", "Cause: Connection refused", "Fix:   Start the server"},
		},
		{
			name: "without cause",
			err:  &UserError{Message: "Invalid document name", Fix: "Use <hashmap>/<key>.json", ExitCode: ExitInput},
			want: []string{"Error: Invalid document name", "Fix:   Use <hashmap>/<key>.json"},
		},
		{
			name: "message only",
			err:  &UserError{Message: "Something failed", ExitCode: ExitInternal},
			want: []string{"Error: Something failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Format(true)
			for _, substr := range tt.want {
				if !strings.Contains(got, substr) {
					t.Errorf("Format() output missing %q\nGot: %s", substr, got)
				}
			}
			if strings.Contains(got, "\x1b[") {
				t.Error("Format(true) output contains ANSI codes")
			}
		})
	}
}

func TestUserError_Format_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	out := (&UserError{Message: "Test error", Cause: "c", Fix: "f"}).Format(false)
	if strings.Contains(out, "\x1b[") {
		t.Error("Format() output contains ANSI codes despite NO_COLOR being set")
	}
}

func TestUserError_ToJSON(t *testing.T) {
	got := NewConfigError("Invalid configuration", "backends is empty", "Set LAZYJSON_BACKENDS", nil).ToJSON()
	want := ErrorJSON{
		Error:    "Invalid configuration",
		Cause:    "backends is empty",
		Fix:      "Set LAZYJSON_BACKENDS",
		ExitCode: ExitConfig,
	}
	if got != want {
		t.Errorf("ToJSON() = %+v, want %+v", got, want)
	}
}

func TestFatalError_Nil(t *testing.T) {
	// Must return without exiting.
	FatalError(nil, false)
}
