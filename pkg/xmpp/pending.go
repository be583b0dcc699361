package xmpp

import (
	"sync"

	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

// pending correlates IQ responses with the queries waiting for them.
type pending struct {
	mu    sync.Mutex
	calls map[string]chan stanza.IQ
}

func newPending() *pending {
	return &pending{calls: make(map[string]chan stanza.IQ)}
}

// register returns the channel the response for id is delivered on and a
// func that forgets the call.
func (p *pending) register(id string) (<-chan stanza.IQ, func()) {
	ch := make(chan stanza.IQ, 1)
	p.mu.Lock()
	p.calls[id] = ch
	p.mu.Unlock()

	return ch, func() {
		p.mu.Lock()
		delete(p.calls, id)
		p.mu.Unlock()
	}
}

// resolve hands iq to its waiting query. It reports false for responses
// nobody asked for.
func (p *pending) resolve(iq stanza.IQ) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.calls[iq.ID]
	if !ok {
		return false
	}
	delete(p.calls, iq.ID)
	ch <- iq
	return true
}

func (p *pending) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
