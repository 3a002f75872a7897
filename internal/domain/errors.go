package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when a call carries no authenticated subject.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCost is returned for a debit of zero or negative credits.
	ErrInvalidCost = errors.New("credit cost must be positive")
	// ErrMissingSubject is returned when a webhook payload names no user.
	ErrMissingSubject = errors.New("webhook payload has no subject user id")
)

// InsufficientCreditsError is returned when a debit would exceed the period limit.
type InsufficientCreditsError struct {
	Required  int
	Remaining int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("Insufficient credits. You need %d credits but only have %d remaining.", e.Required, e.Remaining)
}

// ValidationError carries a user-facing message for a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RateLimitError is returned when an action exceeds the per-user rate limit.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Too many requests. Try again in %d seconds.", e.RetryAfterSeconds)
}
