package session

import "sync"

const DefaultSentCapacity = 4096

// SentRegistry remembers the ids of stanzas the bot sent so their
// reflections are not answered. It holds at most capacity ids and forgets
// the oldest first.
type SentRegistry struct {
	mu   sync.Mutex
	ring []string
	next int
	set  map[string]struct{}
}

func NewSentRegistry(capacity int) *SentRegistry {
	if capacity <= 0 {
		capacity = DefaultSentCapacity
	}
	return &SentRegistry{
		ring: make([]string, capacity),
		set:  make(map[string]struct{}, capacity),
	}
}

// Record adds id. Empty and already known ids are ignored.
func (r *SentRegistry) Record(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.set[id]; ok {
		return
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.set, old)
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
}

func (r *SentRegistry) Contains(id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set[id]
	return ok
}

func (r *SentRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.set)
}

func (r *SentRegistry) Capacity() int {
	return len(r.ring)
}
