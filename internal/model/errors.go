package model

import "errors"

var (
	// User related errors
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrBadCredentials = errors.New("invalid credentials")

	// Token related errors
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenRevoked  = errors.New("token revoked")

	// Absence related errors
	ErrAbsenceNotFound  = errors.New("absence not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrVersionConflict  = errors.New("absence modified concurrently")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
