// Package contacts holds the process-lifetime contact list the dispatcher
// sends to. Contacts are keyed by canonical phone; every load path merges
// into the existing set and never overwrites or clears implicitly.
package contacts

import (
	"sync"

	"wablast/internal/phone"
)

// Contact is one messageable entry. Identity is the canonical phone.
type Contact struct {
	Name   string
	Phone  string
	Active bool
}

// Store is an in-memory, deduplicated contact collection.
// It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	norm  phone.Normalizer
	list  []Contact
	index map[string]int // canonical phone -> position in list
}

func NewStore(norm phone.Normalizer) *Store {
	return &Store{
		norm:  norm,
		index: map[string]int{},
	}
}

// add inserts a contact if its canonical phone is new.
// Call with s.mu held. Returns true when the contact was appended.
func (s *Store) add(c Contact) bool {
	canonical, err := s.norm.Normalize(c.Phone)
	if err != nil {
		return false
	}
	if _, exists := s.index[canonical]; exists {
		return false
	}
	c.Phone = canonical
	s.index[canonical] = len(s.list)
	s.list = append(s.list, c)
	return true
}

// Add inserts a single contact. Returns false when the phone is invalid or
// the canonical phone already exists (the existing entry is kept).
func (s *Store) Add(c Contact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(c)
}

// LoadFromRecords merges records from an external provider, with the same
// skip-duplicates semantics as text loads. Returns the number of newly
// added contacts.
func (s *Store) LoadFromRecords(records []Contact) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, r := range records {
		if s.add(r) {
			added++
		}
	}
	return added
}

// Clear empties the store. Irreversible.
func (s *Store) Clear() {
	s.mu.Lock()
	s.list = nil
	s.index = map[string]int{}
	s.mu.Unlock()
}

// List returns a defensive copy of the current contacts in insertion order.
func (s *Store) List() []Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Contact(nil), s.list...)
}

// Len returns the current number of contacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

// FindByPhone normalizes raw and looks up the matching contact.
func (s *Store) FindByPhone(raw string) (Contact, bool) {
	canonical, err := s.norm.Normalize(raw)
	if err != nil {
		return Contact{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[canonical]
	if !ok {
		return Contact{}, false
	}
	return s.list[i], true
}
