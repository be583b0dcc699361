// Package e2ee defines the end-to-end encryption boundary of the bot.
//
// A Provider recognises encrypted stanzas, decrypts them, and encrypts
// replies for a set of recipients. Key material and trust decisions are the
// provider's own business; the pipeline only sees plaintext and per-recipient
// failures.
package e2ee

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

var (
	// ErrNotEncrypted is returned by Decrypt for a stanza without a payload
	// the provider understands.
	ErrNotEncrypted = errors.New("e2ee: message is not encrypted")
	// ErrUnsupported is returned when the provider recognises a mechanism but
	// cannot operate it.
	ErrUnsupported = errors.New("e2ee: mechanism not supported")
	// ErrSenderMismatch is returned when a payload names another author than
	// the one the stream vouches for.
	ErrSenderMismatch = errors.New("e2ee: payload author does not match sender")
)

// Well-known mechanism namespaces.
const (
	NSOMEMOLegacy = "eu.siacs.conversations.axolotl"
	NSOMEMO2      = "urn:xmpp:omemo:2"
	NSOpenPGP     = "urn:xmpp:openpgp:0"
	NSLegacyPGP   = "jabber:x:encrypted"
)

// KnownMechanisms maps namespaces to the names used in XEP-0380 hints.
var KnownMechanisms = map[string]string{
	NSOMEMOLegacy: "OMEMO",
	NSOMEMO2:      "OMEMO",
	NSOpenPGP:     "OpenPGP for XMPP",
	NSLegacyPGP:   "Legacy OpenPGP",
}

// Plaintext is a decrypted message.
type Plaintext struct {
	Body string
	// Sender is the JID the payload was encrypted by.
	Sender string
}

// RecipientError is the failure to encrypt for one recipient.
type RecipientError struct {
	Recipient string
	Err       error
}

func (e *RecipientError) Error() string {
	return fmt.Sprintf("encrypt for %s: %v", e.Recipient, e.Err)
}

func (e *RecipientError) Unwrap() error { return e.Err }

type Provider interface {
	// Mechanisms maps each namespace the provider can detect to its name.
	Mechanisms() map[string]string
	// IsEncrypted returns the namespace of the encrypted payload of msg.
	IsEncrypted(msg stanza.Message) (string, bool)
	// Decrypt opens the payload of msg. sender is the bare JID the stream
	// vouches for: the bare From of a direct message, or the real JID the
	// room disclosed for an occupant. A payload claiming another author is
	// rejected.
	Decrypt(ctx context.Context, msg stanza.Message, sender string) (Plaintext, error)
	// Encrypt encrypts msg.Body for recipients (bare JIDs). The result maps
	// each namespace to a ready-to-send stanza. Recipients that could not be
	// served are reported individually; the error is for total failure.
	Encrypt(ctx context.Context, msg stanza.Message, recipients []string) (map[string]stanza.Message, []RecipientError, error)
}

// Detect returns the first namespace of msg found in mechanisms, in element
// order.
func Detect(msg stanza.Message, mechanisms map[string]string) (string, bool) {
	for _, ns := range msg.Namespaces() {
		if _, ok := mechanisms[ns]; ok {
			return ns, true
		}
	}
	return "", false
}

// MechanismName returns the XEP-0380 name of ns, falling back to ns itself.
func MechanismName(p Provider, ns string) string {
	if name, ok := p.Mechanisms()[ns]; ok && name != "" {
		return name
	}
	if name, ok := KnownMechanisms[ns]; ok {
		return name
	}
	return ns
}

// SortedNamespaces returns the keys of payloads in a stable order.
func SortedNamespaces(payloads map[string]stanza.Message) []string {
	keys := make([]string, 0, len(payloads))
	for ns := range payloads {
		keys = append(keys, ns)
	}
	slices.Sort(keys)
	return keys
}
