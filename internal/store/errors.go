package store

import "errors"

// ErrMigrationsMissing is returned when the embedded migration filesystem
// has no .sql files — a guard against shipping a binary built without
// its embedded migration tree.
var ErrMigrationsMissing = errors.New("store: no embedded migration files found")
