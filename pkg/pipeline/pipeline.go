// Package pipeline turns one classified inbound message into the replies the
// bot sends: decrypt when needed, extend the conversation history, generate,
// encrypt for the audience, annotate and send.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tinyland-inc/mucclaw/pkg/classify"
	"github.com/tinyland-inc/mucclaw/pkg/e2ee"
	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/providers"
	"github.com/tinyland-inc/mucclaw/pkg/session"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

type Stage string

const (
	StageDecrypt  Stage = "decrypt"
	StageGenerate Stage = "generate"
	StageEncrypt  Stage = "encrypt"
	StageSend     Stage = "send"
)

var (
	ErrEmptyPlaintext = errors.New("decrypted message has no body")
	ErrNoRecipients   = errors.New("no recipients to encrypt for")
	ErrUnknownSender  = errors.New("room did not disclose the sender's real JID")
)

// StageError is a failure that ended the handling of one message.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Sender delivers a stanza.
type Sender interface {
	Send(ctx context.Context, msg stanza.Message) error
}

// Outcome reports what handling one message did.
type Outcome struct {
	Key string
	// Prompt is the history the reply was generated from.
	Prompt string
	Reply  string
	// Sent lists the stanzas that reached the transport.
	Sent []stanza.Message
	// Skipped lists recipients that could not be encrypted for.
	Skipped []e2ee.RecipientError
}

type Pipeline struct {
	crypto e2ee.Provider
	gen    providers.Generator
	out    Sender
}

func New(crypto e2ee.Provider, gen providers.Generator, out Sender) *Pipeline {
	if crypto == nil {
		crypto = e2ee.None{}
	}
	return &Pipeline{crypto: crypto, gen: gen, out: out}
}

// Handle processes msg within sess. Ignored classifications do nothing.
// The returned error is a *StageError; sends that did succeed before a send
// failure are still listed in the outcome.
func (p *Pipeline) Handle(ctx context.Context, sess *session.Context, msg stanza.Message, cls classify.Classification) (Outcome, error) {
	if cls.Ignored() {
		return Outcome{}, nil
	}
	out := Outcome{Key: sess.ConversationKey(msg)}

	text := msg.Body
	var sender string
	if cls.Encrypted {
		pt, err := p.decrypt(ctx, sess, msg)
		if err != nil {
			return out, &StageError{Stage: StageDecrypt, Err: err}
		}
		text = pt.Body
		sender = pt.Sender
	}

	sess.History.Append(out.Key, text)
	out.Prompt = sess.History.Prompt(out.Key)

	reply, err := p.generate(ctx, sess, out.Prompt)
	if err != nil {
		return out, &StageError{Stage: StageGenerate, Err: err}
	}
	out.Reply = reply
	sess.History.Append(out.Key, reply)

	to, typ := replyAddress(msg)
	base := stanza.NewMessage(to, typ, reply)

	outgoing := []stanza.Message{base}
	if cls.Encrypted {
		outgoing, out.Skipped, err = p.encrypt(ctx, sess, base, recipients(sess, msg, sender))
		if err != nil {
			return out, &StageError{Stage: StageEncrypt, Err: err}
		}
	}

	var sendErrs []error
	for _, m := range outgoing {
		// Recorded before sending so the room's reflection is already known.
		sess.Sent.Record(m.ID)
		sctx, cancel := session.Bound(ctx, sess.Timeouts.Send)
		err := p.out.Send(sctx, m)
		cancel()
		if err != nil {
			sendErrs = append(sendErrs, fmt.Errorf("message %s to %s: %w", m.ID, m.To, err))
			continue
		}
		out.Sent = append(out.Sent, m)
	}
	if err := errors.Join(sendErrs...); err != nil {
		return out, &StageError{Stage: StageSend, Err: err}
	}

	logger.DebugCF("pipeline", "Reply sent", map[string]any{
		"key":       out.Key,
		"encrypted": cls.Encrypted,
		"stanzas":   len(out.Sent),
	})
	return out, nil
}

// decrypt opens msg in the name of the sender the session vouches for. The
// plaintext's sender is that JID whatever the provider reports.
func (p *Pipeline) decrypt(ctx context.Context, sess *session.Context, msg stanza.Message) (e2ee.Plaintext, error) {
	sender, ok := sess.Sender(msg)
	if !ok {
		return e2ee.Plaintext{}, fmt.Errorf("%s: %w", msg.From, ErrUnknownSender)
	}
	dctx, cancel := session.Bound(ctx, sess.Timeouts.Decrypt)
	defer cancel()
	pt, err := p.crypto.Decrypt(dctx, msg, sender)
	if err != nil {
		return e2ee.Plaintext{}, err
	}
	pt.Sender = sender
	if strings.TrimSpace(pt.Body) == "" {
		return e2ee.Plaintext{}, ErrEmptyPlaintext
	}
	return pt, nil
}

func (p *Pipeline) generate(ctx context.Context, sess *session.Context, prompt string) (string, error) {
	gctx, cancel := session.Bound(ctx, sess.Timeouts.Generate)
	defer cancel()
	reply, err := p.gen.Generate(gctx, prompt)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", providers.ErrEmptyReply
	}
	return reply, nil
}

// encrypt returns one stanza per mechanism, each with its EME hint and its
// own id. Per-recipient failures are logged and returned beside the result.
func (p *Pipeline) encrypt(ctx context.Context, sess *session.Context, base stanza.Message, to []string) ([]stanza.Message, []e2ee.RecipientError, error) {
	if len(to) == 0 {
		return nil, nil, ErrNoRecipients
	}

	ectx, cancel := session.Bound(ctx, sess.Timeouts.Encrypt)
	defer cancel()
	payloads, skipped, err := p.crypto.Encrypt(ectx, base, to)
	for _, re := range skipped {
		logger.WarnCF("pipeline", "Could not encrypt for recipient", map[string]any{
			"recipient": re.Recipient,
			"error":     re.Err.Error(),
		})
	}
	if err != nil {
		return nil, skipped, err
	}

	out := make([]stanza.Message, 0, len(payloads))
	for i, ns := range e2ee.SortedNamespaces(payloads) {
		m := payloads[ns]
		m.To, m.Type = base.To, base.Type
		if m.ID == "" || i > 0 {
			m.ID = stanza.NewID()
		}
		out = append(out, m.WithElement(stanza.EME(ns, e2ee.MechanismName(p.crypto, ns))))
	}
	if len(out) == 0 {
		return nil, skipped, ErrNoRecipients
	}
	return out, skipped, nil
}

// replyAddress answers group chat to the room and everything else to the
// full JID it came from, keeping chat and normal as they were.
func replyAddress(msg stanza.Message) (string, stanza.MessageType) {
	if msg.Type == stanza.TypeGroupchat {
		return stanza.Bare(msg.From), stanza.TypeGroupchat
	}
	typ := msg.Type
	if typ != stanza.TypeChat {
		typ = stanza.TypeNormal
	}
	return msg.From, typ
}

// recipients is the room roster for group chat and the verified sender
// otherwise, always without the bot itself.
func recipients(sess *session.Context, msg stanza.Message, sender string) []string {
	self := stanza.Bare(sess.Self)
	var list []string
	if msg.Type == stanza.TypeGroupchat {
		list = sess.RosterSnapshot().Unique()
	} else {
		list = []string{stanza.Bare(sender)}
	}
	return slices.DeleteFunc(slices.Clone(list), func(j string) bool {
		return j == "" || j == self
	})
}
