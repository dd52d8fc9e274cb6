package auth

import (
	"errors"
	"fmt"
)

// Stable authentication failure categories.
const (
	ErrorUnauthorized    = "unauthorized"
	ErrorInvalidToken    = "invalid_token"
	ErrorUnknownIssuer   = "unknown_issuer"
	ErrorUnregisteredApp = "unregistered_app"
	ErrorMissingClaim    = "missing_claim"
	ErrorBadRequest      = "bad_request"
)

// Error represents a categorized authentication failure. It is fatal to the
// turn: callers surface it as an unauthorized response and never retry.
type Error struct {
	Category string
	Detail   string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

// NewError creates a categorized authentication error.
func NewError(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// NewErrorf creates a categorized authentication error with formatting.
func NewErrorf(category string, format string, args ...any) error {
	return &Error{Category: category, Detail: fmt.Sprintf(format, args...)}
}

// CategoryFromError returns the stable category for an error when available.
func CategoryFromError(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	return ""
}

// IsAuthenticationError reports whether err is a categorized authentication
// failure.
func IsAuthenticationError(err error) bool {
	var categorized *Error
	return errors.As(err, &categorized)
}
