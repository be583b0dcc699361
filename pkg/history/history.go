// Package history keeps the recent bodies of every conversation the bot takes
// part in. A conversation is keyed by the peer's JID for direct chats and by
// the room JID for the group chat. The bot's own replies are recorded too, so
// the prompt built from a history reads as the whole exchange.
package history

import (
	"slices"
	"strings"
	"sync"
)

const DefaultMaxLength = 20

// Store is safe for concurrent use. Histories are created on first append
// and live as long as the Store.
type Store struct {
	max int

	mu    sync.Mutex
	convs map[string][]string
}

// NewStore bounds every history to max entries. A non-positive max uses
// DefaultMaxLength.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxLength
	}
	return &Store{max: max, convs: make(map[string][]string)}
}

func (s *Store) MaxLength() int { return s.max }

// Append adds text at the back of key's history and drops the oldest
// entries beyond the bound.
func (s *Store) Append(key, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.convs[key], text)
	if over := len(h) - s.max; over > 0 {
		h = slices.Delete(h, 0, over)
	}
	s.convs[key] = h
}

// Snapshot returns a copy of key's history, oldest first.
func (s *Store) Snapshot(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.convs[key])
}

func (s *Store) Size(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs[key])
}

// Prompt joins key's history with newlines.
func (s *Store) Prompt(key string) string {
	return strings.Join(s.Snapshot(key), "\n")
}

// Keys lists the conversations that have a history, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.convs))
	for k := range s.convs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
