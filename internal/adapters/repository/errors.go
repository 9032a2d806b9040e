package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound       = errors.New("subject not found")
	ErrInvalidSubject = errors.New("invalid subject")
	ErrClosed         = errors.New("record store closed")
)
