// Package history keeps the per-contact chat log: an append-only, in-memory
// record of everything sent and received during this process's lifetime.
// There is no eviction; this is an ephemeral operational view, not an archive.
package history

import (
	"sync"
	"time"

	"wablast/internal/eventbus"
	"wablast/internal/phone"
)

// Message is one chat message, immutable once recorded.
type Message struct {
	Counterparty string
	Content      string
	At           time.Time
	Direction    eventbus.Direction
}

// Store maps canonical phone -> ordered message log.
// Append order per counterparty is chronological and never reordered.
// It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	norm  phone.Normalizer
	byKey map[string][]Message

	now func() time.Time // test hook
}

func NewStore(norm phone.Normalizer) *Store {
	return &Store{
		norm:  norm,
		byKey: map[string][]Message{},
		now:   time.Now,
	}
}

// Record appends a timestamped message to the counterparty's log, creating
// the log if absent. The counterparty id is normalized first so incoming and
// outgoing traffic for one contact lands under one key; ids that fail
// normalization are kept as-is rather than dropped.
func (s *Store) Record(counterparty, content string, dir eventbus.Direction) Message {
	key := counterparty
	if canonical, err := s.norm.Normalize(counterparty); err == nil {
		key = canonical
	}
	m := Message{
		Counterparty: key,
		Content:      content,
		At:           s.now(),
		Direction:    dir,
	}
	s.mu.Lock()
	s.byKey[key] = append(s.byKey[key], m)
	s.mu.Unlock()
	return m
}

// HistoryFor returns a copy of the log for the given id (normalized first).
// Unknown ids yield an empty slice, never an error.
func (s *Store) HistoryFor(id string) []Message {
	key := id
	if canonical, err := s.norm.Normalize(id); err == nil {
		key = canonical
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.byKey[key]...)
}

// All returns a deep-copied snapshot of every log. Mutating the result never
// affects the store, which matters once snapshots cross a process boundary.
func (s *Store) All() map[string][]Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]Message, len(s.byKey))
	for k, msgs := range s.byKey {
		out[k] = append([]Message(nil), msgs...)
	}
	return out
}

// IncomingCount reports how many messages from the given id were received.
// Used to badge unread replies without handing out the raw history.
func (s *Store) IncomingCount(id string) int {
	key := id
	if canonical, err := s.norm.Normalize(id); err == nil {
		key = canonical
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.byKey[key] {
		if m.Direction == eventbus.DirIncoming {
			n++
		}
	}
	return n
}
