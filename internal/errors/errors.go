// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides structured error handling for the lazyjson CLI.
//
// UserError carries what went wrong, why, and how to fix it, together with
// the exit code the process should end with:
//
//	err := errors.NewStorageError(
//	    "Cannot connect to MongoDB",
//	    "The server did not answer within 30s",
//	    "Check MONGODB_CONNECTION_STRING or raise mongodb.timeout",
//	    err,
//	)
//	fmt.Fprint(os.Stderr, err.Format(false))
//	// Error: Cannot connect to MongoDB
//	// Cause: The server did not answer within 30s
//	// Fix:   Check MONGODB_CONNECTION_STRING or raise mongodb.timeout
//
// Errors returned by the storage and lazyjson packages are plain Go errors;
// Classify turns them into a UserError with a fitting exit code.
//
// # Exit Codes
//
//   - ExitSuccess (0): Successful execution
//   - ExitConfig (1): Missing or invalid configuration
//   - ExitStorage (2): A backend rejected an operation
//   - ExitNetwork (3): A remote backend could not be reached
//   - ExitInput (4): Bad arguments or document names
//   - ExitPermission (5): Permission denied on the graph root
//   - ExitNotFound (6): The requested document does not exist
//   - ExitInternal (10): Bugs
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/fatih/color"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kraklabs/lazyjson/pkg/storage"
)

// Exit codes for different error categories.
const (
	ExitSuccess = 0

	// ExitConfig indicates configuration errors (missing/invalid config files).
	ExitConfig = 1

	// ExitStorage indicates a backend failed an operation (write refused,
	// corrupt document, failed transaction).
	ExitStorage = 2

	// ExitNetwork indicates a remote backend was unreachable or timed out.
	ExitNetwork = 3

	// ExitInput indicates invalid user input.
	ExitInput = 4

	ExitPermission = 5

	ExitNotFound = 6

	// ExitInternal signals "this is a bug that should be reported".
	ExitInternal = 10
)

// UserError represents an error with structured context for end users.
type UserError struct {
	// Message describes what went wrong in user-friendly language.
	Message string

	// Cause explains why the error occurred.
	Cause string

	// Fix is an actionable suggestion.
	Fix string

	ExitCode int

	// Err is the underlying error, kept for errors.Is and errors.As.
	Err error
}

// Error implements the error interface.
func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *UserError) Unwrap() error {
	return e.Err
}

func newUserError(code int, msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: code, Err: err}
}

// NewConfigError creates a configuration error with exit code ExitConfig.
//
//	return NewConfigError(
//	    "Cannot load lazyjson configuration",
//	    "backends lists \"redis\", which is not a known backend",
//	    "Use a colon separated list of file, mongodb and memory",
//	    nil,
//	)
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitConfig, msg, cause, fix, err)
}

// NewStorageError creates an error for a failed backend operation.
func NewStorageError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitStorage, msg, cause, fix, err)
}

// NewNetworkError creates an error for an unreachable remote backend.
func NewNetworkError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitNetwork, msg, cause, fix, err)
}

// NewInputError creates an error for invalid arguments. Input errors carry
// no underlying error; the message says everything.
func NewInputError(msg, cause, fix string) *UserError {
	return newUserError(ExitInput, msg, cause, fix, nil)
}

// NewPermissionError creates an error for denied file access.
func NewPermissionError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitPermission, msg, cause, fix, err)
}

// NewNotFoundError creates an error for a missing document or key.
func NewNotFoundError(msg, cause, fix string) *UserError {
	return newUserError(ExitNotFound, msg, cause, fix, nil)
}

// NewInternalError creates an error for conditions that indicate a bug.
func NewInternalError(msg, cause, fix string, err error) *UserError {
	return newUserError(ExitInternal, msg, cause, fix, err)
}

// Classify wraps err in a UserError whose exit code matches what failed.
// msg is used as the headline. A UserError anywhere in the chain is
// returned unchanged.
func Classify(msg string, err error) *UserError {
	if err == nil {
		return nil
	}
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue
	}
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		ue = NewNotFoundError(msg, err.Error(), "List existing keys with: lazyjson keys <hashmap>")
		ue.Err = err
	case stderrors.Is(err, storage.ErrUnknownHashmap):
		ue = NewInputError(msg, err.Error(), "Valid hashmaps are: "+hashmapList())
		ue.Err = err
	case stderrors.Is(err, fs.ErrPermission):
		ue = NewPermissionError(msg, "Access to the graph directory was denied",
			"Check ownership of the root directory configured in .lazyjson/config.yaml", err)
	case stderrors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err):
		ue = NewNetworkError(msg, "The operation timed out",
			"Raise mongodb.timeout or check the server load", err)
	case mongo.IsNetworkError(err):
		ue = NewNetworkError(msg, "The MongoDB server could not be reached",
			"Check MONGODB_CONNECTION_STRING and that the server is running", err)
	case stderrors.Is(err, storage.ErrClosed):
		ue = NewInternalError(msg, "A backend was used after it was closed", "Report this as a bug", err)
	default:
		ue = NewStorageError(msg, "", "", err)
	}
	return ue
}

func hashmapList() string {
	names := make([]string, 0, len(storage.AllHashmaps()))
	for _, h := range storage.AllHashmaps() {
		names = append(names, h.String())
	}
	return strings.Join(names, ", ")
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for a terminal. Colors are disabled when
// noColor is set or NO_COLOR is present in the environment.
func (e *UserError) Format(noColor bool) string {
	// Save and restore global color state to avoid side effects
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// ErrorJSON is the JSON form of a UserError for --json output.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts the error to its JSON form.
func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{
		Error:    e.Message,
		Cause:    e.Cause,
		Fix:      e.Fix,
		ExitCode: e.ExitCode,
	}
}

// FatalError prints err to stderr and exits. UserErrors exit with their own
// code; anything else exits with ExitInternal.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	var ue *UserError
	if stderrors.As(err, &ue) {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			// We're about to exit either way.
			_ = enc.Encode(ue.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, ue.Format(false))
		}
		os.Exit(ue.ExitCode)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
