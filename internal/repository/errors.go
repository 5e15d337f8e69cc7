package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict covers unique violations and stale full-document writes
	// (the persisted updated_at no longer matches the expected one).
	ErrConflict = errors.New("conflict")
)
