package testutil

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/tinyland-inc/mucclaw/pkg/e2ee"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

// FakeNamespace is the mechanism namespace of Crypto.
const FakeNamespace = "urn:example:fake-e2ee"

var errNoFakePayload = errors.New("no fake payload")

// Crypto is an e2ee.Provider whose "ciphertext" is the plaintext inside an
// element of FakeNamespace.
type Crypto struct {
	DecryptErr error
	EncryptErr error
	// RecipientErrs fails encryption for single recipients.
	RecipientErrs map[string]error

	mu         sync.Mutex
	recipients [][]string
	senders    []string
}

var _ e2ee.Provider = (*Crypto)(nil)

// Sealed builds an inbound message the fake can decrypt.
func Sealed(from string, typ stanza.MessageType, body string) stanza.Message {
	msg := stanza.Message{
		ID:   stanza.NewID(),
		From: from,
		Type: typ,
		Body: "This message is encrypted.",
	}
	return msg.WithElement(stanza.NewElement(FakeNamespace, "sealed", body))
}

func (c *Crypto) Mechanisms() map[string]string {
	return map[string]string{FakeNamespace: "Fake"}
}

func (c *Crypto) IsEncrypted(msg stanza.Message) (string, bool) {
	return e2ee.Detect(msg, c.Mechanisms())
}

// Decrypt returns the inner text with sender as the author.
func (c *Crypto) Decrypt(_ context.Context, msg stanza.Message, sender string) (e2ee.Plaintext, error) {
	c.mu.Lock()
	c.senders = append(c.senders, sender)
	c.mu.Unlock()

	if c.DecryptErr != nil {
		return e2ee.Plaintext{}, c.DecryptErr
	}
	el, ok := msg.Element(FakeNamespace, "")
	if !ok {
		return e2ee.Plaintext{}, e2ee.ErrNotEncrypted
	}
	return e2ee.Plaintext{Body: el.InnerXML, Sender: sender}, nil
}

// DecryptSenders returns the vouched sender of every Decrypt call.
func (c *Crypto) DecryptSenders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.senders)
}

func (c *Crypto) Encrypt(_ context.Context, msg stanza.Message, recipients []string) (map[string]stanza.Message, []e2ee.RecipientError, error) {
	c.mu.Lock()
	c.recipients = append(c.recipients, slices.Clone(recipients))
	c.mu.Unlock()

	if c.EncryptErr != nil {
		return nil, nil, c.EncryptErr
	}

	var failed []e2ee.RecipientError
	for _, r := range recipients {
		if err, ok := c.RecipientErrs[r]; ok {
			failed = append(failed, e2ee.RecipientError{Recipient: r, Err: err})
		}
	}
	if len(failed) == len(recipients) {
		return nil, failed, errNoFakePayload
	}

	out := msg.Clone()
	out.Body = "This message is encrypted."
	out = out.WithElement(stanza.NewElement(FakeNamespace, "sealed", msg.Body))
	return map[string]stanza.Message{FakeNamespace: out}, failed, nil
}

// EncryptCalls returns the recipient lists of every Encrypt call.
func (c *Crypto) EncryptCalls() [][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.recipients)
}

// Generator is a providers.Generator returning Reply, or calling Func.
type Generator struct {
	Reply string
	Err   error
	Func  func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (g *Generator) Name() string { return "fake" }

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.Func != nil {
		return g.Func(ctx, prompt)
	}
	return g.Reply, g.Err
}

func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.prompts)
}
