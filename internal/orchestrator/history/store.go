// Package history keeps a bounded log of recognized text and barcodes.
package history

import (
	"strings"
	"sync"
	"time"
)

// Event announces a newly recorded entry.
type Event struct {
	Text    string
	Kind    string
	Source  string
	FrameID uint64
}

// Entry is one recorded recognition.
type Entry struct {
	Timestamp time.Time
	Text      string
	Kind      string
	Source    string
	FrameID   uint64
}

// Store interface for history operations.
type Store interface {
	Add(e Event)
	Recent(d time.Duration) []Entry
	Events() <-chan Event
	Emit(event Event)
}

// MemoryStore implements in-memory history storage.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []Entry
	maxSize  int
	eventsCh chan Event
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewStore creates a new history store.
func NewStore(maxEntries, eventBuffer int) *MemoryStore {
	return &MemoryStore{
		entries:  make([]Entry, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
		now:      time.Now,
	}
}

// Add stores a new entry, evicting the oldest beyond the size limit.
func (s *MemoryStore) Add(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, Entry{
		Timestamp: s.now(),
		Text:      e.Text,
		Kind:      e.Kind,
		Source:    e.Source,
		FrameID:   e.FrameID,
	})

	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
}

// Recent returns entries recorded within d, oldest first.
func (s *MemoryStore) Recent(d time.Duration) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-d)
	var result []Entry
	for _, e := range s.entries {
		if !e.Timestamp.Before(cutoff) {
			result = append(result, e)
		}
	}
	return result
}

// Text renders recent entries as "KIND: text" lines.
func (s *MemoryStore) Text(d time.Duration) string {
	entries := s.Recent(d)
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = strings.ToUpper(e.Kind) + ": " + e.Text
	}
	return strings.Join(parts, "\n")
}

// Events returns the channel for history events.
func (s *MemoryStore) Events() <-chan Event {
	return s.eventsCh
}

// Emit sends a history event (non-blocking).
func (s *MemoryStore) Emit(event Event) {
	select {
	case s.eventsCh <- event:
	default:
	}
}

// Entries returns a copy of all entries.
func (s *MemoryStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Entry, len(s.entries))
	copy(result, s.entries)
	return result
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
