package models

import "errors"

// Store implementations wrap these so callers can branch with errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate tender")
)
