// Package xmpp connects the bot to an XMPP server. The Client implementation
// speaks to a real server; Loopback delivers locally for the console.
package xmpp

import (
	"context"
	"errors"

	"github.com/tinyland-inc/mucclaw/pkg/bus"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

var (
	ErrNotConnected = errors.New("xmpp: not connected")
	ErrClosed       = errors.New("xmpp: transport closed")
)

// Transport is the connection the controller drives.
type Transport interface {
	Connect(ctx context.Context) error
	// JID is the full JID the transport is bound to.
	JID() string
	SendPresence(ctx context.Context) error
	JoinRoom(ctx context.Context, room, nick, password string) error
	Send(ctx context.Context, msg stanza.Message) error
	// Query sends iq and waits for the result or error with the same id.
	Query(ctx context.Context, iq stanza.IQ) (stanza.IQ, error)
	// OnPresence registers fn for inbound presence. It is called from the
	// reading goroutine before later stanzas are published.
	OnPresence(fn func(stanza.Presence))
	// Listen publishes inbound messages on b until ctx ends or the
	// connection drops.
	Listen(ctx context.Context, b *bus.MessageBus) error
	Close() error
}
