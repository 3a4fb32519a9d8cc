// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized indicates the caller's credentials were missing, invalid or expired.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNoProvider indicates no chat provider has a configured credential.
var ErrNoProvider = errors.New("no provider configured")

// ErrValidation indicates the request failed input validation.
var ErrValidation = errors.New("validation failed")

// ErrStoreUnavailable indicates the conversation store is not configured or unreachable.
var ErrStoreUnavailable = errors.New("conversation store unavailable")
