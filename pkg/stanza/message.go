// Package stanza holds the XMPP stanza model shared by the transport, the
// classifier and the response pipeline.
//
// Only the parts of <message/> and <iq/> that mucclaw routes on are modelled:
// addressing, type, body and the extension children (encryption payloads,
// XEP-0380 hints). Extension children are kept as raw elements so that an
// end-to-end provider can parse its own payload format.
package stanza

import (
	"encoding/xml"
	"fmt"

	"github.com/google/uuid"
)

type MessageType string

const (
	TypeChat      MessageType = "chat"
	TypeGroupchat MessageType = "groupchat"
	TypeNormal    MessageType = "normal"
	TypeHeadline  MessageType = "headline"
	TypeError     MessageType = "error"
)

// Conversational reports whether the bot answers messages of this type.
func (t MessageType) Conversational() bool {
	switch t {
	case TypeChat, TypeGroupchat, TypeNormal:
		return true
	}
	return false
}

// Element is an extension child of a stanza, kept verbatim.
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	InnerXML string     `xml:",innerxml"`
}

// Attr returns the value of the unqualified attribute name.
func (e Element) Attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// NewElement builds an element in namespace space with the given attribute
// pairs ("name", "value", ...).
func NewElement(space, local, inner string, attrs ...string) Element {
	el := Element{XMLName: xml.Name{Space: space, Local: local}, InnerXML: inner}
	for i := 0; i+1 < len(attrs); i += 2 {
		el.Attrs = append(el.Attrs, xml.Attr{Name: xml.Name{Local: attrs[i]}, Value: attrs[i+1]})
	}
	return el
}

// Message is a <message/> stanza.
type Message struct {
	ID       string
	From     string
	To       string
	Type     MessageType
	Body     string
	Elements []Element
}

// NewID returns a fresh stanza id.
func NewID() string {
	return uuid.NewString()
}

// NewMessage builds an outbound message with a fresh id.
func NewMessage(to string, typ MessageType, body string) Message {
	return Message{
		ID:   NewID(),
		To:   to,
		Type: typ,
		Body: body,
	}
}

// Element returns the first extension child with the given namespace and
// local name. An empty local name matches any element in the namespace.
func (m Message) Element(space, local string) (Element, bool) {
	for _, el := range m.Elements {
		if el.XMLName.Space == space && (local == "" || el.XMLName.Local == local) {
			return el, true
		}
	}
	return Element{}, false
}

// Namespaces lists the namespaces of the extension children in document order.
func (m Message) Namespaces() []string {
	seen := make(map[string]bool, len(m.Elements))
	out := make([]string, 0, len(m.Elements))
	for _, el := range m.Elements {
		ns := el.XMLName.Space
		if ns == "" || seen[ns] {
			continue
		}
		seen[ns] = true
		out = append(out, ns)
	}
	return out
}

// Clone returns a copy that does not share the element slice.
func (m Message) Clone() Message {
	c := m
	if m.Elements != nil {
		c.Elements = make([]Element, len(m.Elements))
		copy(c.Elements, m.Elements)
	}
	return c
}

// WithElement returns a copy with el appended.
func (m Message) WithElement(el Element) Message {
	c := m.Clone()
	c.Elements = append(c.Elements, el)
	return c
}

type wireElement struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	InnerXML string     `xml:",innerxml"`
}

type wireMessage struct {
	XMLName  xml.Name `xml:"message"`
	ID       string   `xml:"id,attr,omitempty"`
	From     string   `xml:"from,attr,omitempty"`
	To       string   `xml:"to,attr,omitempty"`
	Type     string   `xml:"type,attr,omitempty"`
	Body     string   `xml:"body,omitempty"`
	Elements []wireElement
}

func toWire(el Element) wireElement {
	w := wireElement{XMLName: el.XMLName, InnerXML: el.InnerXML}
	for _, a := range el.Attrs {
		// Namespace declarations come back from the decoder as attributes;
		// the encoder writes the declaration from XMLName.Space itself.
		if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
			continue
		}
		w.Attrs = append(w.Attrs, a)
	}
	return w
}

// XML renders the message for the wire.
func (m Message) XML() (string, error) {
	w := wireMessage{
		ID:   m.ID,
		From: m.From,
		To:   m.To,
		Type: string(m.Type),
		Body: m.Body,
	}
	for _, el := range m.Elements {
		w.Elements = append(w.Elements, toWire(el))
	}
	out, err := xml.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("marshal message %s: %w", m.ID, err)
	}
	return string(out), nil
}
