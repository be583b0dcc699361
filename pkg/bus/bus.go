// Package bus decouples the XMPP transport from the controller. The transport
// publishes inbound stanzas; the controller consumes them in arrival order.
// The outbound side carries stanzas for transports that deliver locally, such
// as the console used by "mucclaw chat".
package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

// DefaultBuffer is the capacity of each direction.
const DefaultBuffer = 100

type MessageBus struct {
	inbound  chan stanza.Message
	outbound chan stanza.Message
	done     chan struct{}
	closed   atomic.Bool
}

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(DefaultBuffer)
}

// NewMessageBusSize buffers up to size stanzas per direction. A full buffer
// makes publishers wait, which stalls the transport's read loop rather than
// losing stanzas.
func NewMessageBusSize(size int) *MessageBus {
	if size < 0 {
		size = 0
	}
	return &MessageBus{
		inbound:  make(chan stanza.Message, size),
		outbound: make(chan stanza.Message, size),
		done:     make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, msg stanza.Message) error {
	return mb.publish(ctx, mb.inbound, msg)
}

// ConsumeInbound blocks until a stanza arrives. It returns false once the bus
// is closed or ctx ends.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (stanza.Message, bool) {
	return mb.consume(ctx, mb.inbound)
}

func (mb *MessageBus) PublishOutbound(ctx context.Context, msg stanza.Message) error {
	return mb.publish(ctx, mb.outbound, msg)
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (stanza.Message, bool) {
	return mb.consume(ctx, mb.outbound)
}

// Pending reports how many stanzas wait in each direction.
func (mb *MessageBus) Pending() (inbound, outbound int) {
	return len(mb.inbound), len(mb.outbound)
}

// Done is closed when the bus closes.
func (mb *MessageBus) Done() <-chan struct{} {
	return mb.done
}

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}

func (mb *MessageBus) publish(ctx context.Context, ch chan<- stanza.Message, msg stanza.Message) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case ch <- msg:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// consume prefers closure over queued stanzas once the bus is closed.
func (mb *MessageBus) consume(ctx context.Context, ch <-chan stanza.Message) (stanza.Message, bool) {
	select {
	case <-mb.done:
		return stanza.Message{}, false
	default:
	}
	select {
	case msg := <-ch:
		return msg, true
	case <-mb.done:
		return stanza.Message{}, false
	case <-ctx.Done():
		return stanza.Message{}, false
	}
}
