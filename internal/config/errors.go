package config

import "errors"

// ErrNotFound is returned when a requested setting does not exist in the store.
var ErrNotFound = errors.New("not found")
