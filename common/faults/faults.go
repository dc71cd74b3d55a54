package faults

import (
	"errors"
	"fmt"
)

// Sentinel errors for the recoverable failure classes of the engine.
// Callers wrap these with fmt.Errorf("...: %w", ...) and the HTTP layer
// maps them to status codes with errors.Is.
var (
	// ErrNotFound - collection, rule, asset, batch or proposal missing
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied - caller is not the owner or a controller
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidState - wrong proposal status for the requested transition
	ErrInvalidState = errors.New("invalid state")

	// ErrIntegrityMismatch - claimed and computed SHA-256 digests disagree
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrCertification - no certificate available or hash tree serialization failed
	ErrCertification = errors.New("certification failure")

	// ErrValidation - malformed URL, bad path pattern, reserved path collision
	ErrValidation = errors.New("validation error")
)

// NotFound wraps ErrNotFound with a formatted description
func NotFound(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// PermissionDenied wraps ErrPermissionDenied with a formatted description
func PermissionDenied(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPermissionDenied)...)
}

// InvalidState wraps ErrInvalidState with a formatted description
func InvalidState(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidState)...)
}

// IntegrityMismatch wraps ErrIntegrityMismatch with a formatted description
func IntegrityMismatch(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrIntegrityMismatch)...)
}

// Certification wraps ErrCertification with a formatted description
func Certification(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrCertification)...)
}

// Validation wraps ErrValidation with a formatted description
func Validation(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}
