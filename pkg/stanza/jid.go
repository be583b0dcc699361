package stanza

import (
	"strings"

	"mellium.im/xmpp/jid"
)

// Normalize returns the canonical form of a JID string. Strings that do not
// parse are returned trimmed so that comparisons stay total.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	j, err := jid.Parse(s)
	if err != nil {
		return s
	}
	return j.String()
}

// Bare strips the resource part.
func Bare(s string) string {
	s = strings.TrimSpace(s)
	j, err := jid.Parse(s)
	if err != nil {
		if idx := strings.IndexByte(s, '/'); idx >= 0 {
			return s[:idx]
		}
		return s
	}
	return j.Bare().String()
}

// Resource returns the resource part, or "" when there is none. For room
// occupants this is the nickname.
func Resource(s string) string {
	s = strings.TrimSpace(s)
	j, err := jid.Parse(s)
	if err != nil {
		if idx := strings.IndexByte(s, '/'); idx >= 0 {
			return s[idx+1:]
		}
		return ""
	}
	return j.Resourcepart()
}

// SameBare reports whether a and b name the same account or room.
func SameBare(a, b string) bool {
	return Bare(a) == Bare(b)
}

// Equal compares two JIDs after normalisation.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
