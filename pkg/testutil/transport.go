// Package testutil provides in-memory fakes of the bot's outer boundaries:
// the XMPP transport, the encryption provider and the reply generator.
package testutil

import (
	"context"
	"encoding/xml"
	"sync"

	"github.com/tinyland-inc/mucclaw/pkg/bus"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
	"github.com/tinyland-inc/mucclaw/pkg/xmpp"
)

type QueryFunc func(ctx context.Context, iq stanza.IQ) (stanza.IQ, error)

type Join struct {
	Room     string
	Nick     string
	Password string
}

// Transport records what the code under test sends. Inbound stanzas are fed
// with Deliver and published by Listen. Set the exported fields before use.
type Transport struct {
	self string

	QueryFunc   QueryFunc
	SendFunc    func(ctx context.Context, msg stanza.Message) error
	ConnectErr  error
	PresenceErr error
	JoinErr     error

	mu        sync.Mutex
	queries   []stanza.IQ
	sent      []stanza.Message
	joins     []Join
	presences int
	connects  int

	onPresence func(stanza.Presence)
	inbound    chan any
	dropped    chan error
	dropOnce   sync.Once
}

var _ xmpp.Transport = (*Transport)(nil)

func NewTransport(self string) *Transport {
	return &Transport{
		self:    self,
		inbound: make(chan any, 64),
		dropped: make(chan error, 1),
	}
}

func (t *Transport) JID() string { return t.self }

func (t *Transport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	return t.ConnectErr
}

func (t *Transport) SendPresence(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.presences++
	return t.PresenceErr
}

func (t *Transport) JoinRoom(_ context.Context, room, nick, password string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joins = append(t.joins, Join{Room: room, Nick: nick, Password: password})
	return t.JoinErr
}

func (t *Transport) Send(ctx context.Context, msg stanza.Message) error {
	if t.SendFunc != nil {
		if err := t.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg.Clone())
	return nil
}

// Query answers with QueryFunc, or with an empty result when it is unset.
func (t *Transport) Query(ctx context.Context, iq stanza.IQ) (stanza.IQ, error) {
	if iq.ID == "" {
		iq.ID = stanza.NewID()
	}
	if iq.From == "" {
		iq.From = t.self
	}
	t.mu.Lock()
	t.queries = append(t.queries, iq)
	fn := t.QueryFunc
	t.mu.Unlock()

	if fn == nil {
		return iq.Result(""), nil
	}
	return fn(ctx, iq)
}

func (t *Transport) Listen(ctx context.Context, b *bus.MessageBus) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-t.dropped:
			return err
		case st := <-t.inbound:
			switch v := st.(type) {
			case stanza.Message:
				if err := b.PublishInbound(ctx, v); err != nil {
					return err
				}
			case stanza.Presence:
				t.mu.Lock()
				fn := t.onPresence
				t.mu.Unlock()
				if fn != nil {
					fn(v)
				}
			}
		}
	}
}

func (t *Transport) Close() error {
	t.Drop(nil)
	return nil
}

func (t *Transport) OnPresence(fn func(stanza.Presence)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPresence = fn
}

// Deliver queues msg for Listen.
func (t *Transport) Deliver(msg stanza.Message) {
	t.inbound <- msg
}

// DeliverPresence queues p for Listen. It is handled in order with the
// messages delivered around it.
func (t *Transport) DeliverPresence(p stanza.Presence) {
	t.inbound <- p
}

// Occupant builds the room presence disclosing realJID behind nick.
func Occupant(room, nick, realJID string) stanza.Presence {
	return stanza.Presence{
		From: stanza.Bare(room) + "/" + nick,
		Item: &stanza.UserItem{JID: realJID, Affiliation: "member", Role: "participant"},
	}
}

// Drop makes Listen return err, as a lost connection would.
func (t *Transport) Drop(err error) {
	t.dropOnce.Do(func() { t.dropped <- err })
}

func (t *Transport) Queries() []stanza.IQ {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]stanza.IQ(nil), t.queries...)
}

func (t *Transport) Sent() []stanza.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]stanza.Message(nil), t.sent...)
}

func (t *Transport) Joins() []Join {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Join(nil), t.joins...)
}

func (t *Transport) Presences() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.presences
}

func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

type adminResult struct {
	XMLName xml.Name           `xml:"http://jabber.org/protocol/muc#admin query"`
	Items   []stanza.AdminItem `xml:"item"`
}

// RosterResponder answers muc#admin queries from lists keyed by category
// name (owner, admin, member, moderator).
func RosterResponder(lists map[string][]string) QueryFunc {
	return func(_ context.Context, iq stanza.IQ) (stanza.IQ, error) {
		req, err := stanza.ParseAdminItems(iq.Payload)
		if err != nil || len(req) != 1 {
			return iq.ErrorReply("modify", stanza.CondBadRequest), nil
		}
		category := req[0].Affiliation
		if category == "" {
			category = req[0].Role
		}

		var res adminResult
		for _, j := range lists[category] {
			item := stanza.AdminItem{JID: j}
			if req[0].Role != "" {
				item.Role = req[0].Role
			} else {
				item.Affiliation = req[0].Affiliation
			}
			res.Items = append(res.Items, item)
		}
		payload, err := xml.Marshal(res)
		if err != nil {
			return stanza.IQ{}, err
		}
		return iq.Result(string(payload)), nil
	}
}

// ErrorResult is the error reply to iq with condition cond.
func ErrorResult(iq stanza.IQ, cond string) stanza.IQ {
	return iq.ErrorReply("cancel", cond)
}
