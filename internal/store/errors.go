package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions.
var (
	ErrNotFound   = errors.New("not found")
	ErrDatabase   = errors.New("database error")
	ErrInvalidArg = errors.New("invalid argument")
)

// RecordError provides context for record-related errors.
type RecordError struct {
	Op  string // Operation that failed (e.g., "get metadata")
	Key string // provider/id if applicable
	Err error  // Underlying error
}

func (e *RecordError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s '%s': %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// wrapDBError converts a database error to a RecordError.
func wrapDBError(err error, op, key string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &RecordError{Op: op, Key: key, Err: ErrNotFound}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return &RecordError{Op: op, Key: key, Err: fmt.Errorf("%w: referenced item does not exist", ErrDatabase)}
	case strings.Contains(msg, "no such table"):
		return &RecordError{Op: op, Key: key, Err: fmt.Errorf("%w: database not initialized", ErrDatabase)}
	}

	return &RecordError{Op: op, Key: key, Err: fmt.Errorf("%w: %v", ErrDatabase, err)}
}
