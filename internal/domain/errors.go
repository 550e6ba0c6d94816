package domain

import "errors"

var (
	// ErrStorage wraps local store I/O failures.
	ErrStorage = errors.New("local storage failure")
	// ErrRemote wraps network, auth and quota failures of the remote store.
	ErrRemote = errors.New("remote store failure")
	// ErrMalformed marks a remote document that cannot be turned into a note.
	ErrMalformed = errors.New("malformed note document")
	// ErrInvalidNote is returned when a note fails validation at the write
	// boundary.
	ErrInvalidNote = errors.New("invalid note")
	// ErrNotFound is a benign absence.
	ErrNotFound = errors.New("not found")
)
