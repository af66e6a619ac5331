package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// ContactRecord is a persisted roster entry.
// Phone is stored in canonical form.
type ContactRecord struct {
	Name   string
	Phone  string
	Active bool
}
