// Package coreerrors implements the fatal, non-value-returned half of
// the error taxonomy: CoreError marks internal invariant violations
// the core façade treats as unrecoverable, DataBaseError marks I/O and
// lifecycle failures from the underlying store.
package coreerrors

import "fmt"

// CoreErrorCode enumerates CoreError's fine-grained discriminant.
type CoreErrorCode int

// Supported CoreErrorCode values.
const (
	ErrNotInitialized CoreErrorCode = iota
	ErrCorruptedBlockchain
)

var coreErrorCodeStrings = map[CoreErrorCode]string{
	ErrNotInitialized:      "core is not initialized",
	ErrCorruptedBlockchain: "blockchain state is corrupted: an internal invariant was violated",
}

// String returns the descriptive message for the code.
func (c CoreErrorCode) String() string {
	if s, ok := coreErrorCodeStrings[c]; ok {
		return s
	}
	return "unknown core error code"
}

// CoreError represents a fatal internal invariant violation, e.g. a
// segment whose index does not know a hash the segment itself
// contains. Per spec section 7, these are never returned as ordinary
// validation failures; callers that see one should treat the node as
// needing intervention.
type CoreError struct {
	Code        CoreErrorCode
	Description string
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	return e.Description
}

// NewCoreError constructs a CoreError.
func NewCoreError(code CoreErrorCode, format string, args ...interface{}) *CoreError {
	desc := code.String()
	if format != "" {
		desc = fmt.Sprintf(format, args...)
	}
	return &CoreError{Code: code, Description: desc}
}

// DataBaseErrorCode enumerates DataBaseError's fine-grained
// discriminant.
type DataBaseErrorCode int

// Supported DataBaseErrorCode values.
const (
	ErrDBNotInitialized DataBaseErrorCode = iota
	ErrDBAlreadyInitialized
	ErrDBInternal
	ErrDBIO
	// ErrDBMappedToBackupFile is returned when a mutation is attempted
	// on a FileMappedVector-backed store while its live handle still
	// refers to the `.bak` file left over from an interrupted atomic
	// update (spec section 7's "mapped to backup file" window).
	ErrDBMappedToBackupFile
)

var dataBaseErrorCodeStrings = map[DataBaseErrorCode]string{
	ErrDBNotInitialized:     "database is not initialized",
	ErrDBAlreadyInitialized: "database is already initialized",
	ErrDBInternal:           "internal database error",
	ErrDBIO:                 "database I/O error",
	ErrDBMappedToBackupFile: "store is mapped to its .bak file after an earlier interrupted update",
}

// String returns the descriptive message for the code.
func (c DataBaseErrorCode) String() string {
	if s, ok := dataBaseErrorCodeStrings[c]; ok {
		return s
	}
	return "unknown database error code"
}

// DataBaseError represents an I/O or lifecycle failure from the raw
// block store or segment cache's persistent backing.
type DataBaseError struct {
	Code        DataBaseErrorCode
	Description string
}

// Error implements the error interface.
func (e *DataBaseError) Error() string {
	return e.Description
}

// NewDataBaseError constructs a DataBaseError.
func NewDataBaseError(code DataBaseErrorCode, format string, args ...interface{}) *DataBaseError {
	desc := code.String()
	if format != "" {
		desc = fmt.Sprintf(format, args...)
	}
	return &DataBaseError{Code: code, Description: desc}
}
