package storage

import "errors"

// ErrNotFound is returned when a lookup by id matches no row. Callers treat
// it as a distinct, non-fatal result (404 at the API boundary).
var ErrNotFound = errors.New("not found")
