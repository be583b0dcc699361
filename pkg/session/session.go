// Package session holds the state of one bot session: who the bot is, which
// room it serves, the room roster, conversation histories, the ids it sent
// and the timeouts of every network step. Components receive the Context
// explicitly instead of reaching for globals.
package session

import (
	"context"
	"time"

	"github.com/tinyland-inc/mucclaw/pkg/affiliation"
	"github.com/tinyland-inc/mucclaw/pkg/history"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

type Timeouts struct {
	Query    time.Duration
	Decrypt  time.Duration
	Generate time.Duration
	Encrypt  time.Duration
	Send     time.Duration
}

// Bound derives a context for one step. A non-positive d only adds
// cancellation.
func Bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type Options struct {
	// Self is the bot's full JID.
	Self            string
	Room            string
	Nick            string
	AllowFrom       []string
	AllowAffiliates bool
	MaxHistory      int
	SentCapacity    int
	// LaneIdle is how long a conversation lane waits for work before it
	// stops. Non-positive uses DefaultLaneIdle.
	LaneIdle time.Duration
	Timeouts Timeouts
}

type Context struct {
	Self   string
	Room   string
	Nick   string
	Roster *affiliation.Tracker
	// Occupants is fed from room presence by the transport.
	Occupants *Occupants
	History   *history.Store
	Sent      *SentRegistry
	Auth      *Authorizer
	LaneIdle  time.Duration
	Timeouts  Timeouts
}

// New builds the session state around roster. roster may be nil when the
// session has no room.
func New(opts Options, roster *affiliation.Tracker) *Context {
	c := &Context{
		Self:      stanza.Normalize(opts.Self),
		Room:      stanza.Bare(opts.Room),
		Nick:      opts.Nick,
		Roster:    roster,
		Occupants: NewOccupants(opts.Room),
		History:   history.NewStore(opts.MaxHistory),
		Sent:      NewSentRegistry(opts.SentCapacity),
		LaneIdle:  opts.LaneIdle,
		Timeouts:  opts.Timeouts,
	}
	var src RosterSource
	if roster != nil {
		src = roster
	}
	c.Auth = NewAuthorizer(opts.AllowFrom, opts.AllowAffiliates, src, c.Occupants)
	return c
}

// RosterSnapshot returns the current roster, empty without a tracker.
func (c *Context) RosterSnapshot() affiliation.Set {
	if c.Roster == nil {
		return affiliation.Set{}
	}
	return c.Roster.Snapshot()
}

// ConversationKey is the room JID for group chat and the sender's full JID
// otherwise. Private messages through the room keep their occupant JID and
// never share the room's history.
func (c *Context) ConversationKey(msg stanza.Message) string {
	if msg.Type == stanza.TypeGroupchat {
		return stanza.Bare(msg.From)
	}
	return stanza.Normalize(msg.From)
}

// IsOwnOccupant reports whether from is the bot's own occupant JID in the room.
func (c *Context) IsOwnOccupant(from string) bool {
	return c.Room != "" && stanza.Bare(from) == c.Room && stanza.Resource(from) == c.Nick
}

// Sender returns the bare JID that stands behind msg. Stanzas from the room
// resolve through the occupant directory and report false when the room did
// not disclose the occupant; anything else is its bare From.
func (c *Context) Sender(msg stanza.Message) (string, bool) {
	if c.Occupants.InRoom(msg.From) {
		return c.Occupants.RealJID(msg.From)
	}
	bare := stanza.Bare(msg.From)
	return bare, bare != ""
}
