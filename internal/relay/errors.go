package relay

import "errors"

var (
	// ErrMissingUser indicates the caller passed no user identity. This is
	// an integration bug upstream, not a user-visible condition.
	ErrMissingUser = errors.New("user identity is required")

	// ErrEmptyMessage indicates the incoming message had no text.
	ErrEmptyMessage = errors.New("message text is required")

	// ErrEmptyAnswer indicates a completion round finished without any
	// final text where one was required.
	ErrEmptyAnswer = errors.New("completion produced no final answer")
)
