/******************************************************************************
 * Copyright (c) 2025 Tenebris Technologies Inc.                              *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package db

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by database operations
var (
	// ErrDatabaseClosed is returned when an operation is attempted on a closed database
	ErrDatabaseClosed = errors.New("database is closed")

	// ErrTokenNotFound is returned when an API token does not exist
	ErrTokenNotFound = errors.New("token not found")

	// ErrDuplicateToken is returned when a token hash already exists
	ErrDuplicateToken = errors.New("duplicate token")

	// ErrConnectionNotFound is returned when a connection record does not exist
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrInvalidEncryptionKey is returned when the configured encryption key is unusable
	ErrInvalidEncryptionKey = errors.New("invalid encryption key")
)

// DatabaseError wraps a low-level storage failure with the operation that caused it
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a DatabaseError for the given operation
func NewDatabaseError(op string, err error) *DatabaseError {
	return &DatabaseError{Op: op, Err: err}
}

// ValidationError indicates that an input value failed validation
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field, value, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// TokenError indicates a failure involving a specific token or connection
type TokenError struct {
	Type string
	ID   string
	Err  error
}

func (e *TokenError) Error() string {
	id := e.ID
	if len(id) > 12 {
		id = id[:12]
	}
	return fmt.Sprintf("%s token error for %s: %v", e.Type, id, e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// NewTokenError creates a TokenError for the given token type and identifier
func NewTokenError(tokenType, id string, err error) *TokenError {
	return &TokenError{Type: tokenType, ID: id, Err: err}
}

// IsNotFound reports whether err indicates a missing token or connection
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrConnectionNotFound)
}
