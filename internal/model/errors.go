package model

import "errors"

var (
	// ErrNotFound indicates a lookup for an unknown conversation or key.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity indicates a contract violation that would corrupt the
	// data model if ignored: an event targeting a message the conversation
	// never held, or an identity promotion whose source is absent.
	ErrIntegrity = errors.New("integrity violation")
)
