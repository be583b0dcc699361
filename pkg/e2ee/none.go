package e2ee

import (
	"context"
	"maps"

	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

// None detects the well-known mechanisms without operating any of them.
// Encrypted messages are classified as encrypted and then fail to decrypt,
// so they are never answered in plaintext.
type None struct{}

func (None) Mechanisms() map[string]string {
	return maps.Clone(KnownMechanisms)
}

func (n None) IsEncrypted(msg stanza.Message) (string, bool) {
	return Detect(msg, KnownMechanisms)
}

func (n None) Decrypt(_ context.Context, msg stanza.Message, _ string) (Plaintext, error) {
	if _, ok := n.IsEncrypted(msg); !ok {
		return Plaintext{}, ErrNotEncrypted
	}
	return Plaintext{}, ErrUnsupported
}

func (None) Encrypt(context.Context, stanza.Message, []string) (map[string]stanza.Message, []RecipientError, error) {
	return nil, nil, ErrUnsupported
}
