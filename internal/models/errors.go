package models

import "errors"

// ErrNotFound is returned by storage lookups that matched nothing.
// Callers use errors.Is to tell a missing row from a real failure.
var ErrNotFound = errors.New("not found")
