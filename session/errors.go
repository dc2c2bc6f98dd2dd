package session

import "errors"

// ErrNotFound is returned when no snapshot exists for a session id.
var ErrNotFound = errors.New("session not found")
