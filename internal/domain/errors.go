package domain

import "errors"

var (
	// ErrMalformedRequest indicates an unparseable inbound body
	ErrMalformedRequest = errors.New("malformed request body")
	// ErrUnrecoverableImage indicates an image payload the vision subtask
	// cannot repair; the whole request short-circuits on it
	ErrUnrecoverableImage = errors.New("unrecoverable image payload")
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
)
