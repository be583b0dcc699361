// Package classify decides what to do with an inbound message before any
// network work happens: ignore it, or answer it as group chat, chat or
// normal message, encrypted or in plaintext.
package classify

import (
	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

type Kind int

const (
	Ignore Kind = iota
	Groupchat
	Chat
	Normal
)

func (k Kind) String() string {
	switch k {
	case Ignore:
		return "ignore"
	case Groupchat:
		return "groupchat"
	case Chat:
		return "chat"
	case Normal:
		return "normal"
	}
	return "unknown"
}

// Direct reports whether replies go to the sender rather than the room.
func (k Kind) Direct() bool {
	return k == Chat || k == Normal
}

type Reason int

const (
	NoReason Reason = iota
	Duplicate
	NoBody
	Unauthorized
	UnsupportedType
)

func (r Reason) String() string {
	switch r {
	case NoReason:
		return ""
	case Duplicate:
		return "duplicate"
	case NoBody:
		return "no body"
	case Unauthorized:
		return "unauthorized"
	case UnsupportedType:
		return "unsupported type"
	}
	return "unknown"
}

// Classification is the verdict for one message. Reason is set only for
// Ignore; Namespace only when Encrypted.
type Classification struct {
	Kind      Kind
	Reason    Reason
	Encrypted bool
	Namespace string
}

func (c Classification) Ignored() bool { return c.Kind == Ignore }

func ignore(r Reason) Classification {
	return Classification{Kind: Ignore, Reason: r}
}

// SentIDs is the set of ids the bot sent.
type SentIDs interface {
	Contains(id string) bool
}

type SenderPolicy interface {
	IsAllowed(sender string) bool
}

// EncryptionDetector finds the end-to-end payload of a message.
type EncryptionDetector interface {
	IsEncrypted(msg stanza.Message) (string, bool)
}

type Classifier struct {
	sent     SentIDs
	policy   SenderPolicy
	detector EncryptionDetector
}

func New(sent SentIDs, policy SenderPolicy, detector EncryptionDetector) *Classifier {
	return &Classifier{sent: sent, policy: policy, detector: detector}
}

// Classify applies, in order: own ids are duplicates, messages without a
// body carry nothing to answer, unauthorized senders are dropped, and only
// group chat, chat and normal messages are answered.
func (c *Classifier) Classify(msg stanza.Message) Classification {
	if c.sent != nil && c.sent.Contains(msg.ID) {
		return ignore(Duplicate)
	}
	if msg.Body == "" {
		return ignore(NoBody)
	}
	if c.policy == nil || !c.policy.IsAllowed(msg.From) {
		logger.WarnCF("classify", "Received message from unauthorized user", map[string]any{
			"from": msg.From,
			"id":   msg.ID,
		})
		return ignore(Unauthorized)
	}

	var kind Kind
	switch msg.Type {
	case stanza.TypeGroupchat:
		kind = Groupchat
	case stanza.TypeChat:
		kind = Chat
	case stanza.TypeNormal:
		kind = Normal
	default:
		return ignore(UnsupportedType)
	}

	out := Classification{Kind: kind}
	if c.detector != nil {
		if ns, ok := c.detector.IsEncrypted(msg); ok {
			out.Encrypted = true
			out.Namespace = ns
		}
	}
	return out
}
