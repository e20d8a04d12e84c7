// Package store holds the overlay's in-memory message collection.
package store

import (
	"sort"

	"github.com/john/chatoverlay/internal/message"
)

// Store maps identity keys to messages, ordered by key on demand.
// It is not safe for concurrent use; the overlay engine owns it.
type Store struct {
	messages map[string]message.ChatMessage
}

// New creates an empty store
func New() *Store {
	return &Store{messages: make(map[string]message.ChatMessage)}
}

// Insert adds msg unless its key is already present.
// Existing entries are never overwritten.
func (s *Store) Insert(msg message.ChatMessage) bool {
	key := msg.Key()
	if _, ok := s.messages[key]; ok {
		return false
	}
	s.messages[key] = msg
	return true
}

// Get returns the message stored under key
func (s *Store) Get(key string) (message.ChatMessage, bool) {
	msg, ok := s.messages[key]
	return msg, ok
}

// Len returns the number of stored messages
func (s *Store) Len() int {
	return len(s.messages)
}

// Keys returns all keys in ascending lexicographic order
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.messages))
	for k := range s.messages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Trim evicts the lowest keys until at most max messages remain.
// It returns the evicted keys.
func (s *Store) Trim(max int) []string {
	excess := len(s.messages) - max
	if excess <= 0 {
		return nil
	}
	evicted := s.Keys()[:excess]
	for _, k := range evicted {
		delete(s.messages, k)
	}
	return evicted
}
