package pipeline

// errors.go maps pipeline failures to operator-facing messages with codes
// for support reference. Codes are grouped by category:
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Source unavailable: the inspection file could not be retrieved
//	SRC002 - Unsupported encoding: SOURCE_ENCODING names an unknown charset
//
// # Parse Errors (PRS001-PRS099)
//
//	PRS001 - Schema mismatch: a line does not have exactly 18 fields
//	PRS002 - Ambiguous value: a date could not be reformatted
//	PRS003 - Unsorted input: records are not grouped by restaurant and date
//
// # Load Errors (LDR001-LDR099)
//
//	LDR001 - Table not found: destination table is missing (run migrate)
//	LDR002 - Sink unavailable: no database connection could be acquired
//	LDR003 - Sink write: a batch or truncate statement failed
//	LDR004 - Row arity: an intermediate stream row has the wrong width
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run in progress: another run holds the pipeline
//	RUN002 - Run cancelled
//	RUN003 - Run timed out
//
// # Database Errors (DB004-DB099)
//
//	DB004 - Connection refused
//	DB005 - Connection reset
//	DB007 - Deadlock
//
// # Default Error (ERR000)
//
// Typed errors are matched with errors.Is first; the remaining patterns are
// matched case-insensitively against the error text. The first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/dohpipeline/internal/loader"
	"github.com/JonMunkholm/dohpipeline/internal/normalize"
	"github.com/JonMunkholm/dohpipeline/internal/record"
	"github.com/JonMunkholm/dohpipeline/internal/source"
)

// StageError names the stage, and for loads the table, that failed.
type StageError struct {
	Stage         string
	Table         string
	RowsCommitted int64
	Err           error
}

func (e *StageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Table, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// LoadFailures returns the per-table load failures joined into err, in
// table order.
func LoadFailures(err error) []*StageError {
	var out []*StageError
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
		case *StageError:
			if e.Stage == StageLoad && e.Table != "" {
				out = append(out, e)
			}
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return out
}

// UserMessage provides operator-facing error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorKind struct {
	target error
	msg    UserMessage
}

var errorKinds = []errorKind{
	{ErrRunInProgress, UserMessage{
		Message: "Another pipeline run is in progress",
		Action:  "Wait for the active run to finish",
		Code:    "RUN001",
	}},
	{context.Canceled, UserMessage{
		Message: "Run was cancelled",
		Action:  "Start a new run when ready; completed stages are kept",
		Code:    "RUN002",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Run timed out",
		Action:  "Raise PIPELINE_TIMEOUT or rerun; completed stages are kept",
		Code:    "RUN003",
	}},
	{source.ErrSourceUnavailable, UserMessage{
		Message: "The inspection file could not be retrieved",
		Action:  "Check SOURCE_URL or SOURCE_PATH and network access",
		Code:    "SRC001",
	}},
	{record.ErrSchemaMismatch, UserMessage{
		Message: "A source line does not match the expected columns",
		Action:  "Check the file is the DOH inspection results export",
		Code:    "PRS001",
	}},
	{record.ErrCleaningAmbiguity, UserMessage{
		Message: "A source value could not be cleaned",
		Action:  "Inspect the reported line; dates must be MM/DD/YYYY",
		Code:    "PRS002",
	}},
	{normalize.ErrUnsortedInput, UserMessage{
		Message: "Source records are not sorted by restaurant and inspection date",
		Action:  "Sort the file or set ORDER_CHECK=off to accept it as is",
		Code:    "PRS003",
	}},
	{loader.ErrTableNotFound, UserMessage{
		Message: "Destination table does not exist",
		Action:  "Run the migrate command or enable DB_AUTO_MIGRATE",
		Code:    "LDR001",
	}},
	{loader.ErrSinkUnavailable, UserMessage{
		Message: "Unable to connect to database",
		Action:  "Check DATABASE_URL and that the database is running",
		Code:    "LDR002",
	}},
	{loader.ErrRowArity, UserMessage{
		Message: "An intermediate file row has the wrong number of columns",
		Action:  "Rerun with -reload to rebuild the intermediate files",
		Code:    "LDR004",
	}},
	{loader.ErrSinkWrite, UserMessage{
		Message: "The database rejected a batch",
		Action:  "Fix the cause and rerun with -reload; committed batches of the failed table remain",
		Code:    "LDR003",
	}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"unsupported source encoding", UserMessage{
		Message: "Unsupported source encoding",
		Action:  "Set SOURCE_ENCODING to utf-8 or windows-1252",
		Code:    "SRC002",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
}

// defaultMessage is returned when nothing matches (ERR000). Check the logs
// for the technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the failing stage and table",
	Code:    "ERR000",
}

// MapError converts a pipeline error to an operator-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
