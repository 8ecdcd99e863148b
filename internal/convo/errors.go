package convo

import "errors"

// Sentinel errors for conversation operations. Check with errors.Is().
var (
	// ErrEmptyContent indicates an attempt to append a turn with no text.
	// An empty turn is a contract violation on the caller's side, never a
	// condition to paper over.
	ErrEmptyContent = errors.New("turn content is empty")

	// ErrEmptyUser indicates a missing user identity.
	ErrEmptyUser = errors.New("user id is empty")
)
