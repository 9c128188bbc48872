package repository

import "errors"

// ErrUniqueViolation is returned by stores when a write collides with a
// unique index.
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("record not found")
