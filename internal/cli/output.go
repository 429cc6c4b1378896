package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fangwd/restup/internal/engine"
	"github.com/fangwd/restup/internal/record"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The operation ran and failed (engine error, invalid schema)
	ExitCommandError = 2 // Command error (bad flags, config, database unreachable)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric       = "E001"
	ErrCodeConfig        = "E002"
	ErrCodeInvalidSchema = "E003"
	ErrCodeBadInput      = "E004"
	ErrCodeSchema        = "E101"
	ErrCodeValidation    = "E102"
	ErrCodeQuery         = "E103"
	ErrCodeTransport     = "E104"
	ErrCodeConstraint    = "E105"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// errorCode maps an engine error kind to its CLI error code.
func errorCode(err error) string {
	kind, ok := engine.KindOf(err)
	if !ok {
		return ErrCodeGeneric
	}
	switch kind {
	case engine.KindSchema:
		return ErrCodeSchema
	case engine.KindValidation:
		return ErrCodeValidation
	case engine.KindQuery:
		return ErrCodeQuery
	case engine.KindTransport:
		return ErrCodeTransport
	case engine.KindConstraint:
		return ErrCodeConstraint
	}
	return ErrCodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E101", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Rows outputs rows: one JSON object per line in text format, or a single
// response in JSON format.
func (f *OutputFormatter) Rows(rows []record.Row) error {
	if rows == nil {
		rows = []record.Row{}
	}
	if f.Format == "json" {
		return f.Success(rows)
	}
	enc := json.NewEncoder(f.Writer)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// IDs outputs the identities returned by a write as one JSON array.
func (f *OutputFormatter) IDs(ids []any) error {
	if ids == nil {
		ids = []any{}
	}
	if f.Format == "json" {
		return f.Success(ids)
	}
	return json.NewEncoder(f.Writer).Encode(ids)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports an engine error and returns the matching ExitError.
func (f *OutputFormatter) Fail(op string, err error) error {
	var details any
	var ee *engine.Error
	if errors.As(err, &ee) && ee.Row >= 0 {
		details = map[string]int{"row": ee.Row}
	}
	_ = f.Error(errorCode(err), err.Error(), details)
	return WrapExitError(ExitFailure, op+" failed", err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
