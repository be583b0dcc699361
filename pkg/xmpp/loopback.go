package xmpp

import (
	"context"
	"sync"

	"github.com/tinyland-inc/mucclaw/pkg/bus"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

// Loopback is a Transport without a server. Sent stanzas go to the bus
// outbound side and inbound stanzas are whatever the owner publishes on the
// bus. Queries are answered with service-unavailable.
type Loopback struct {
	self string
	bus  *bus.MessageBus

	closed    chan struct{}
	closeOnce sync.Once
}

func NewLoopback(self string, b *bus.MessageBus) *Loopback {
	return &Loopback{
		self:   self,
		bus:    b,
		closed: make(chan struct{}),
	}
}

func (l *Loopback) JID() string { return l.self }

// OnPresence is a no-op; nothing sends presence over the loopback.
func (l *Loopback) OnPresence(func(stanza.Presence)) {}

func (l *Loopback) Connect(context.Context) error { return l.err() }

func (l *Loopback) SendPresence(context.Context) error { return l.err() }

func (l *Loopback) JoinRoom(context.Context, string, string, string) error { return l.err() }

func (l *Loopback) Send(ctx context.Context, msg stanza.Message) error {
	if err := l.err(); err != nil {
		return err
	}
	if msg.From == "" {
		msg.From = l.self
	}
	return l.bus.PublishOutbound(ctx, msg)
}

func (l *Loopback) Query(_ context.Context, iq stanza.IQ) (stanza.IQ, error) {
	if err := l.err(); err != nil {
		return stanza.IQ{}, err
	}
	if iq.From == "" {
		iq.From = l.self
	}
	return iq.ErrorReply("cancel", stanza.CondServiceUnavailable), nil
}

func (l *Loopback) Listen(ctx context.Context, _ *bus.MessageBus) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closed:
		return nil
	}
}

func (l *Loopback) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *Loopback) err() error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
		return nil
	}
}
