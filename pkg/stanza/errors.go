package stanza

import (
	"encoding/xml"
	"errors"
	"strings"
)

const NSStanzas = "urn:ietf:params:xml:ns:xmpp-stanzas"

// Defined conditions from RFC 6120 section 8.3.3 that the bot reacts to.
const (
	CondBadRequest         = "bad-request"
	CondForbidden          = "forbidden"
	CondItemNotFound       = "item-not-found"
	CondNotAllowed         = "not-allowed"
	CondNotAuthorized      = "not-authorized"
	CondRegistrationReq    = "registration-required"
	CondServiceUnavailable = "service-unavailable"
	CondUndefined          = "undefined-condition"
)

// Error is the <error/> child of an error-typed stanza.
type Error struct {
	Type      string
	Condition string
	Text      string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("stanza error: ")
	b.WriteString(e.Condition)
	if e.Type != "" {
		b.WriteString(" (")
		b.WriteString(e.Type)
		b.WriteString(")")
	}
	if e.Text != "" {
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}

// IsCondition reports whether err wraps a stanza error with condition cond.
func IsCondition(err error, cond string) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Condition == cond
}

// ParseError finds the first <error/> element in payload. It returns nil when
// there is none.
func ParseError(payload string) *Error {
	dec := xml.NewDecoder(strings.NewReader(payload))
	var (
		found *Error
		depth int
		inErr int
		inTxt bool
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			// Truncated or malformed payloads yield whatever was read so far.
			return found
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if found == nil && t.Name.Local == "error" {
				found = &Error{}
				inErr = depth
				for _, a := range t.Attr {
					if a.Name.Local == "type" {
						found.Type = a.Value
					}
				}
				continue
			}
			if found != nil && inErr > 0 && depth == inErr+1 && t.Name.Space == NSStanzas {
				if t.Name.Local == "text" {
					inTxt = true
				} else if found.Condition == "" {
					found.Condition = t.Name.Local
				}
			}
		case xml.CharData:
			if inTxt {
				found.Text += string(t)
			}
		case xml.EndElement:
			if inTxt && t.Name.Local == "text" {
				inTxt = false
			}
			if inErr > 0 && depth == inErr {
				if found.Condition == "" {
					found.Condition = CondUndefined
				}
				return found
			}
			depth--
		}
	}
}
