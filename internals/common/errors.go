// Package common defines sentinel errors shared by the server and the client.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Lookup errors.
	ErrNotFound = errors.New("not found")

	// Request errors.
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyMessage = errors.New("message is empty")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")

	// Upstream errors.
	ErrUpstream      = errors.New("upstream error")
	ErrNotConfigured = errors.New("not configured")

	// Flow errors.
	ErrBusy       = errors.New("request already in flight")
	ErrWrongPhase = errors.New("action not available in the current phase")
)
