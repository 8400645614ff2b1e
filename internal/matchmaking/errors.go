package matchmaking

import "errors"

var (
	ErrAlreadyQueued = errors.New("already_queued")
	ErrNotFound      = errors.New("entry_not_found")
	ErrInvalidState  = errors.New("invalid_state")
)
