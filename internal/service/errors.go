// Package service holds the business operations of the booking system:
// client identity, the reservation engine, the administrative directory
// and dashboard accounts. Handlers translate the errors declared here into
// HTTP responses with errors.Is / errors.As.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the addressed client, reservation,
	// collaborator or user does not exist (or does not belong to the PIN).
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when a client tries to edit or cancel a
	// reservation that is no longer pending.
	ErrInvalidState = errors.New("reservation is no longer pending")
	// ErrDuplicateContact is wrapped by DuplicateContactError.
	ErrDuplicateContact = errors.New("contact already registered")
	// ErrPersistence wraps storage failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrForbidden is returned by admin operations called without the admin role.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidStatus is returned for status labels outside the enum.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrSelfAction is returned when an admin tries to delete or demote
	// their own account.
	ErrSelfAction = errors.New("operation not allowed on own account")
	// ErrInvalidCredentials is returned by Login for a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPINExhausted is returned when no free PIN could be drawn.
	ErrPINExhausted = errors.New("could not allocate a unique pin")
)

// DuplicateContactError reports which contact field already belongs to
// another client.
type DuplicateContactError struct {
	Field string // "phone" or "email"
}

func (e *DuplicateContactError) Error() string {
	return fmt.Sprintf("%s already registered to another client", e.Field)
}

func (e *DuplicateContactError) Unwrap() error { return ErrDuplicateContact }

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrPersistence, err)
}
