package models

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound marks a lookup for a key with no stored session. Store
// implementations do not return it: Load reports that case as (nil, false, nil).
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionInactive marks a resume against a session whose Active flag is false.
var ErrSessionInactive = errors.New("session inactive")

// ErrBlockNotFound marks a session whose current_block does not resolve
// against the loaded scenario.
var ErrBlockNotFound = errors.New("block not found")

// ErrNoHandler marks a block type with no registered handler.
var ErrNoHandler = errors.New("no handler registered for block type")

// ValidationError is the scenario validator's error triad: a human-readable
// message, a dotted field path, and, when known, the offending block id and
// type. This triad is the test oracle for validator error scenarios.
type ValidationError struct {
	Message   string
	Path      string
	BlockID   string
	BlockType string
}

func (e *ValidationError) Error() string {
	if e.Path == "" && e.BlockID == "" {
		return e.Message
	}
	parts := e.Message
	if e.Path != "" {
		parts += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.BlockType != "" {
		parts += fmt.Sprintf(" (type: %s)", e.BlockType)
	}
	if e.BlockID != "" {
		parts += fmt.Sprintf(" (block_id: %s)", e.BlockID)
	}
	return parts
}

// NewValidationError builds a ValidationError with just a message and path.
func NewValidationError(message, path string) *ValidationError {
	return &ValidationError{Message: message, Path: path}
}

// WithBlock returns a copy of the error annotated with the offending block.
func (e *ValidationError) WithBlock(blockID, blockType string) *ValidationError {
	cp := *e
	cp.BlockID = blockID
	cp.BlockType = blockType
	return &cp
}
