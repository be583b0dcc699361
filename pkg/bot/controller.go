// Package bot drives one session: it connects, resolves the room roster,
// announces itself, joins the room and answers every inbound message it is
// allowed to answer.
package bot

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/mucclaw/pkg/bus"
	"github.com/tinyland-inc/mucclaw/pkg/classify"
	"github.com/tinyland-inc/mucclaw/pkg/e2ee"
	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/pipeline"
	"github.com/tinyland-inc/mucclaw/pkg/providers"
	"github.com/tinyland-inc/mucclaw/pkg/session"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
	"github.com/tinyland-inc/mucclaw/pkg/xmpp"
)

// ErrDisconnected is returned by Run when the transport stopped delivering
// without an error of its own.
var ErrDisconnected = errors.New("transport disconnected")

type Options struct {
	Transport xmpp.Transport
	Session   *session.Context
	Crypto    e2ee.Provider
	Generator providers.Generator
	// Bus is created when nil.
	Bus *bus.MessageBus

	RoomPassword string
	// RefreshSchedule is a cron expression for roster refreshes. Empty keeps
	// the roster resolved at start for the whole session.
	RefreshSchedule string
}

type Controller struct {
	transport  xmpp.Transport
	sess       *session.Context
	bus        *bus.MessageBus
	classifier *classify.Classifier
	pipeline   *pipeline.Pipeline

	roomPassword string
	schedule     string
}

func New(opts Options) *Controller {
	crypto := opts.Crypto
	if crypto == nil {
		crypto = e2ee.None{}
	}
	b := opts.Bus
	if b == nil {
		b = bus.NewMessageBus()
	}
	opts.Transport.OnPresence(opts.Session.Occupants.Observe)
	return &Controller{
		transport:    opts.Transport,
		sess:         opts.Session,
		bus:          b,
		classifier:   classify.New(opts.Session.Sent, opts.Session.Auth, crypto),
		pipeline:     pipeline.New(crypto, opts.Generator, opts.Transport),
		roomPassword: opts.RoomPassword,
		schedule:     opts.RefreshSchedule,
	}
}

func (c *Controller) Bus() *bus.MessageBus { return c.bus }

// Run connects and serves until ctx ends, which is a clean shutdown, or the
// transport fails.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.transport.Close()
	// Occupants are learned again from the presence that follows the join.
	c.sess.Occupants.Reset()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.transport.Listen(gctx, c.bus)
		if err == nil {
			err = ErrDisconnected
		}
		return err
	})

	g.Go(func() error {
		c.start(gctx)
		c.serve(gctx)
		return nil
	})

	if c.schedule != "" && c.sess.Roster != nil {
		g.Go(func() error {
			return c.sess.Roster.RunSchedule(gctx, c.schedule)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		logger.InfoC("bot", "Session ended")
		return nil
	}
	return err
}

// start resolves the roster, sends presence and joins the room. Each step
// that fails is logged and the session goes on.
func (c *Controller) start(ctx context.Context) {
	if c.sess.Room == "" {
		return
	}

	if c.sess.Roster != nil {
		if err := c.sess.Roster.Refresh(ctx); err != nil {
			logger.ErrorCF("bot", "Failed to retrieve room affiliations", map[string]any{
				"room":  c.sess.Room,
				"error": err.Error(),
			})
		} else {
			logger.InfoCF("bot", "Affiliations retrieved", map[string]any{
				"room":    c.sess.Room,
				"members": c.sess.RosterSnapshot().Unique(),
			})
		}
	}

	pctx, cancel := session.Bound(ctx, c.sess.Timeouts.Send)
	err := c.transport.SendPresence(pctx)
	cancel()
	if err != nil {
		logger.ErrorCF("bot", "Error sending presence", map[string]any{"error": err.Error()})
	} else {
		logger.InfoC("bot", "Presence sent")
	}

	jctx, cancel := session.Bound(ctx, c.sess.Timeouts.Send)
	err = c.transport.JoinRoom(jctx, c.sess.Room, c.sess.Nick, c.roomPassword)
	cancel()
	if err != nil {
		logger.ErrorCF("bot", "Error joining room", map[string]any{
			"room":  c.sess.Room,
			"nick":  c.sess.Nick,
			"error": err.Error(),
		})
		return
	}
	logger.InfoCF("bot", "Room join request sent", map[string]any{
		"room": c.sess.Room,
		"nick": c.sess.Nick,
	})
}

// serve classifies inbound messages in arrival order and hands the answerable
// ones to the lane of their conversation.
func (c *Controller) serve(ctx context.Context) {
	lanes := session.NewLanes(ctx, c.sess.LaneIdle)
	defer lanes.Close()
	defer func() {
		if in, _ := c.bus.Pending(); in > 0 {
			logger.DebugCF("bot", "Stopped with unread stanzas", map[string]any{"pending": in})
		}
	}()

	for {
		msg, ok := c.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		if c.sess.IsOwnOccupant(msg.From) {
			continue
		}

		cls := c.classifier.Classify(msg)
		if cls.Ignored() {
			logger.DebugCF("bot", "Message ignored", map[string]any{
				"id":     msg.ID,
				"from":   msg.From,
				"reason": cls.Reason.String(),
			})
			continue
		}

		key := c.sess.ConversationKey(msg)
		err := lanes.Dispatch(key, func(ctx context.Context) {
			c.handle(ctx, msg, cls)
		})
		if err != nil {
			return
		}
	}
}

func (c *Controller) handle(ctx context.Context, msg stanza.Message, cls classify.Classification) {
	out, err := c.pipeline.Handle(ctx, c.sess, msg, cls)
	if err != nil {
		fields := map[string]any{
			"id":    msg.ID,
			"from":  msg.From,
			"error": err.Error(),
		}
		var se *pipeline.StageError
		if errors.As(err, &se) {
			fields["stage"] = string(se.Stage)
		}
		if errors.Is(err, providers.ErrEmptyReply) {
			logger.InfoCF("bot", "No reply generated", fields)
			return
		}
		logger.ErrorCF("bot", "Failed to answer message", fields)
		return
	}
	logger.InfoCF("bot", "Replied", map[string]any{
		"to":        msg.From,
		"kind":      cls.Kind.String(),
		"encrypted": cls.Encrypted,
		"stanzas":   len(out.Sent),
	})
}
