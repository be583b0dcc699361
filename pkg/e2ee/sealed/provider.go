// Package sealed is a bundled end-to-end provider built on age.
//
// Every bot and client holds an X25519 identity. A sealed message carries the
// sender's public key, the fingerprints of the devices it was encrypted for
// and one age payload readable by all of them:
//
//	<sealed xmlns="urn:xmpp:mucclaw:sealed:0" jid="alice@example.org" key="age1...">
//	  <key rid="3f1c..."/>
//	  <payload>YWdlLWVuY3J5cHRpb24ub3JnL3YxCi0+...</payload>
//	</sealed>
//
// Devices are learned from inbound messages whose author the stream vouches
// for and trusted according to TrustStore. Other well-known mechanisms are
// detected so their messages are treated as encrypted, but cannot be opened.
package sealed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"filippo.io/age"

	"github.com/tinyland-inc/mucclaw/pkg/e2ee"
	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
	"github.com/tinyland-inc/mucclaw/pkg/storage"
)

const (
	Namespace = "urn:xmpp:mucclaw:sealed:0"
	Name      = "mucclaw sealed"
)

var (
	ErrNoTrustedDevices = errors.New("sealed: recipient has no trusted device")
	ErrDistrusted       = errors.New("sealed: sender device is distrusted")
	ErrNotForDevice     = errors.New("sealed: message was not encrypted for this device")
	ErrUnknownSender    = errors.New("sealed: sender could not be identified")
)

const fallbackBody = "This message is encrypted with " + Name + " (" + Namespace + ")."

type Options struct {
	// BlindTrust enables blind trust before verification.
	BlindTrust  bool
	OnUndecided UndecidedFunc
}

type Provider struct {
	self     string
	identity *age.X25519Identity
	trust    *TrustStore
}

// New loads the identity of self from store, creating one on first use.
func New(store storage.Store, self string, opts Options) (*Provider, error) {
	id, created, err := loadIdentity(store)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		self:     stanza.Bare(self),
		identity: id,
		trust:    NewTrustStore(store, opts.BlindTrust, opts.OnUndecided),
	}
	if created {
		logger.InfoCF("sealed", "Generated device identity", map[string]any{
			"fingerprint": FormatFingerprint(p.Fingerprint()),
		})
	}
	return p, nil
}

func (p *Provider) PublicKey() string {
	return p.identity.Recipient().String()
}

func (p *Provider) Fingerprint() string {
	return Fingerprint(p.PublicKey())
}

func (p *Provider) Trust() *TrustStore {
	return p.trust
}

// Mechanisms lists the sealed namespace and the well-known mechanisms the
// provider detects but cannot open.
func (p *Provider) Mechanisms() map[string]string {
	m := maps.Clone(e2ee.KnownMechanisms)
	m[Namespace] = Name
	return m
}

// IsEncrypted prefers a sealed payload and otherwise reports any well-known
// mechanism, so foreign ciphertext is never answered in plaintext.
func (p *Provider) IsEncrypted(msg stanza.Message) (string, bool) {
	if _, ok := msg.Element(Namespace, "sealed"); ok {
		return Namespace, true
	}
	return e2ee.Detect(msg, e2ee.KnownMechanisms)
}

type keyRef struct {
	RID string `xml:"rid,attr"`
}

type sealedBody struct {
	Keys    []keyRef `xml:"key"`
	Payload string   `xml:"payload"`
}

// Decrypt opens a sealed payload from sender. The author named by the
// payload must be sender, and the sender's device is learned only once the
// payload opened for this device.
func (p *Provider) Decrypt(ctx context.Context, msg stanza.Message, sender string) (e2ee.Plaintext, error) {
	if err := ctx.Err(); err != nil {
		return e2ee.Plaintext{}, err
	}
	el, ok := msg.Element(Namespace, "sealed")
	if !ok {
		if ns, known := e2ee.Detect(msg, e2ee.KnownMechanisms); known {
			return e2ee.Plaintext{}, fmt.Errorf("%s: %w", e2ee.KnownMechanisms[ns], e2ee.ErrUnsupported)
		}
		return e2ee.Plaintext{}, e2ee.ErrNotEncrypted
	}

	sender = stanza.Bare(sender)
	if sender == "" {
		return e2ee.Plaintext{}, fmt.Errorf("sealed message from %s: %w", msg.From, ErrUnknownSender)
	}
	author := sender
	if claimed := el.Attr("jid"); claimed != "" {
		author = stanza.Bare(claimed)
	}
	if author != sender {
		return e2ee.Plaintext{}, fmt.Errorf("sealed message from %s claims %s: %w", msg.From, author, e2ee.ErrSenderMismatch)
	}

	key := el.Attr("key")
	if key == "" {
		return e2ee.Plaintext{}, fmt.Errorf("sealed element from %s has no key", sender)
	}

	var body sealedBody
	if err := xml.Unmarshal([]byte("<sealed>"+el.InnerXML+"</sealed>"), &body); err != nil {
		return e2ee.Plaintext{}, fmt.Errorf("parsing sealed element: %w", err)
	}

	own := p.Fingerprint()
	if !slices.ContainsFunc(body.Keys, func(k keyRef) bool { return k.RID == own }) {
		return e2ee.Plaintext{}, ErrNotForDevice
	}

	device, known, err := p.trust.Lookup(sender, key)
	if err != nil {
		return e2ee.Plaintext{}, err
	}
	if known && device.Trust == Distrusted {
		return e2ee.Plaintext{}, fmt.Errorf("%s device %s: %w", sender, FormatFingerprint(device.Fingerprint), ErrDistrusted)
	}

	plaintext, err := open(body.Payload, p.identity)
	if err != nil {
		return e2ee.Plaintext{}, err
	}
	if !known {
		if _, err := p.trust.Observe(sender, key); err != nil {
			return e2ee.Plaintext{}, err
		}
	}
	return e2ee.Plaintext{Body: string(plaintext), Sender: sender}, nil
}

func (p *Provider) Encrypt(ctx context.Context, msg stanza.Message, recipients []string) (map[string]stanza.Message, []e2ee.RecipientError, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		rerrs []e2ee.RecipientError
		keys  []string
		fps   []string
		seen  = map[string]bool{}
	)
	for _, r := range recipients {
		bare := stanza.Bare(r)
		if bare == p.self || seen[bare] {
			continue
		}
		seen[bare] = true

		devices, err := p.trust.Usable(bare)
		if err != nil {
			rerrs = append(rerrs, e2ee.RecipientError{Recipient: bare, Err: err})
			continue
		}
		if len(devices) == 0 {
			rerrs = append(rerrs, e2ee.RecipientError{Recipient: bare, Err: ErrNoTrustedDevices})
			continue
		}
		for _, d := range devices {
			if slices.Contains(fps, d.Fingerprint) {
				continue
			}
			keys = append(keys, d.PublicKey)
			fps = append(fps, d.Fingerprint)
		}
	}
	if len(keys) == 0 {
		return nil, rerrs, fmt.Errorf("no recipient can be encrypted for: %w", ErrNoTrustedDevices)
	}

	payload, err := seal([]byte(msg.Body), keys)
	if err != nil {
		return nil, rerrs, err
	}

	var inner strings.Builder
	for _, fp := range fps {
		inner.WriteString(`<key rid="`)
		_ = xml.EscapeText(&inner, []byte(fp))
		inner.WriteString(`"/>`)
	}
	inner.WriteString("<payload>")
	inner.WriteString(payload)
	inner.WriteString("</payload>")

	out := msg.Clone()
	out.Body = fallbackBody
	out.Elements = append(out.Elements, stanza.NewElement(Namespace, "sealed", inner.String(),
		"jid", p.self,
		"key", p.PublicKey(),
	))
	return map[string]stanza.Message{Namespace: out}, rerrs, nil
}
