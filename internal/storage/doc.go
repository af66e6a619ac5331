// Package storage persists contact rosters and per-contact delivery counters
// outside the process. It is optional; with driver "none" the dispatcher runs
// purely in memory.
package storage
