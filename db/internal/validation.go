/******************************************************************************
 * Copyright (c) 2025 Tenebris Technologies Inc.                              *
 * Please see LICENSE file for details.                                       *
 ******************************************************************************/

package internal

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation limits
const (
	// MinTokenLength is the minimum acceptable API token length
	MinTokenLength = 32

	// MaxTokenLength is the maximum acceptable API token length
	MaxTokenLength = 128

	// HashLength is the length of a hex-encoded SHA-256 hash
	HashLength = 64

	// PrefixLength is the length of the token prefix used for identification
	PrefixLength = 8

	// MaxDescriptionLength is the maximum length of a description field
	MaxDescriptionLength = 256

	// MaxConnectionIDLength is the maximum length of a connection identifier
	MaxConnectionIDLength = 64

	// MaxDivisionLength is the maximum length of an administration code
	MaxDivisionLength = 32
)

var (
	hashRegex         = regexp.MustCompile(`^[a-f0-9]{64}$`)
	connectionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
	regionRegex       = regexp.MustCompile(`^[a-z]{2}$`)
	divisionRegex     = regexp.MustCompile(`^[0-9]+$`)
)

// ValidateToken checks that a raw API token is well-formed
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if len(token) < MinTokenLength {
		return fmt.Errorf("token too short (minimum %d characters)", MinTokenLength)
	}
	if len(token) > MaxTokenLength {
		return fmt.Errorf("token too long (maximum %d characters)", MaxTokenLength)
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return fmt.Errorf("token cannot contain whitespace")
	}
	return nil
}

// ValidateHash checks that a string is a hex-encoded SHA-256 hash
func ValidateHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("hash cannot be empty")
	}
	if len(hash) != HashLength {
		return fmt.Errorf("hash must be exactly %d characters", HashLength)
	}
	if !hashRegex.MatchString(hash) {
		return fmt.Errorf("hash must be lowercase hexadecimal")
	}
	return nil
}

// ValidateConnectionID checks that a connection identifier is well-formed
func ValidateConnectionID(id string) error {
	if id == "" {
		return fmt.Errorf("connection ID cannot be empty")
	}
	if len(id) > MaxConnectionIDLength {
		return fmt.Errorf("connection ID too long (maximum %d characters)", MaxConnectionIDLength)
	}
	if !connectionIDRegex.MatchString(id) {
		return fmt.Errorf("connection ID must start with an alphanumeric character and contain only alphanumerics, dots, underscores, and hyphens")
	}
	return nil
}

// ValidateRegion checks that a region code is a two-letter lowercase code
func ValidateRegion(region string) error {
	if region == "" {
		return fmt.Errorf("region cannot be empty")
	}
	if !regionRegex.MatchString(region) {
		return fmt.Errorf("region must be a two-letter lowercase code")
	}
	return nil
}

// ValidateDivision checks that an administration code is numeric. An empty
// division is allowed; the current division is discovered from the upstream
// API on first use.
func ValidateDivision(division string) error {
	if division == "" {
		return nil
	}
	if len(division) > MaxDivisionLength {
		return fmt.Errorf("division too long (maximum %d characters)", MaxDivisionLength)
	}
	if !divisionRegex.MatchString(division) {
		return fmt.Errorf("division must be numeric")
	}
	return nil
}

// ValidateDescription checks that a description field is acceptable
func ValidateDescription(description string) error {
	if len(description) > MaxDescriptionLength {
		return fmt.Errorf("description too long (maximum %d characters)", MaxDescriptionLength)
	}
	if !utf8.ValidString(description) {
		return fmt.Errorf("description must be valid UTF-8")
	}
	return nil
}
