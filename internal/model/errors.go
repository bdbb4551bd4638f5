package model

import (
	"errors"
	"fmt"
)

// ExitCode defines standard CLI exit codes. These codes allow scripts and CI
// systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitSchemaError indicates a malformed or type-mismatched fragment.
	ExitSchemaError ExitCode = 2

	// ExitConflictError indicates a port/service collision, or a manifest
	// overlay id missing from the current catalog.
	ExitConflictError ExitCode = 3

	// ExitIOError indicates a filesystem failure during backup or write.
	ExitIOError ExitCode = 4

	// ExitCustomPatchError indicates a malformed custom-patch file or one
	// referencing an unresolvable merge target.
	ExitCustomPatchError ExitCode = 5

	// ExitManifestNotFound indicates superposition.json was not found at
	// the expected location.
	ExitManifestNotFound ExitCode = 6

	// ExitCatalogError indicates the overlay catalog directory is missing
	// or unreadable.
	ExitCatalogError ExitCode = 7
)

// SchemaError reports a malformed or type-mismatched fragment, for example
// a key declared as a list by one overlay and a scalar by another. It always
// carries full provenance (fragment source + offending path) so the user can
// fix the specific overlay.
type SchemaError struct {
	// Source is the id of the fragment that failed validation
	// ("manifest" for manifest-level schema problems).
	Source string

	// Path is the dotted path to the offending key, when known.
	Path string

	// Message describes what is wrong.
	Message string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("schema error in %s at %s: %s", e.Source, e.Path, e.Message)
	}
	return fmt.Sprintf("schema error in %s: %s", e.Source, e.Message)
}

// ExitCode returns the exit code for schema failures.
func (e *SchemaError) ExitCode() ExitCode { return ExitSchemaError }

// ConflictError reports a collision between two independently authored
// sources: an actual-port collision, a compose host-port collision between
// two overlays' services, or a manifest overlay id missing from the catalog.
// Both offending sources are named so the user knows exactly which pair to
// reconcile.
type ConflictError struct {
	// Path is the conflicting path or resource (e.g. "port 5532/tcp").
	Path string

	// First and Second are the two offending fragment/overlay ids.
	// Second may be empty for single-source conflicts (missing overlay id).
	First  string
	Second string

	// Message describes the conflict.
	Message string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Second != "" {
		return fmt.Sprintf("conflict between %q and %q on %s: %s", e.First, e.Second, e.Path, e.Message)
	}
	return fmt.Sprintf("conflict on %s (%s): %s", e.Path, e.First, e.Message)
}

// ExitCode returns the exit code for conflict failures.
func (e *ConflictError) ExitCode() ExitCode { return ExitConflictError }

// IOError reports a filesystem failure during backup or write. The Op field
// distinguishes the failing phase so callers know whether anything
// destructive happened (a backup failure aborts before any mutation; a write
// failure triggers rollback to the backup).
type IOError struct {
	// Op names the failing operation ("backup", "write", "rollback").
	Op string

	// Path is the filesystem path involved.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *IOError) Unwrap() error { return e.Err }

// ExitCode returns the exit code for I/O failures.
func (e *IOError) ExitCode() ExitCode { return ExitIOError }

// CustomPatchError reports a malformed custom-patch file or one referencing
// an unresolvable merge target.
type CustomPatchError struct {
	// File is the custom-patch file that failed.
	File string

	// Err is the underlying parse or merge error.
	Err error
}

// Error implements the error interface.
func (e *CustomPatchError) Error() string {
	return fmt.Sprintf("custom patch %s: %v", e.File, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *CustomPatchError) Unwrap() error { return e.Err }

// ExitCode returns the exit code for custom-patch failures.
func (e *CustomPatchError) ExitCode() ExitCode { return ExitCustomPatchError }

// CLIError is a custom error type that carries an exit code. The CLI layer
// uses it to translate domain errors into process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error { return e.Err }

// ExitCode returns the carried exit code.
func (e *CLIError) ExitCode() ExitCode { return e.Code }

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// exitCoder is implemented by every error in the taxonomy.
type exitCoder interface {
	ExitCode() ExitCode
}

// ExitCodeFor extracts the exit code from an error chain. Errors outside the
// taxonomy map to ExitGeneralError; nil maps to ExitSuccess.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return ExitGeneralError
}
