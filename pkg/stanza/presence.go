package stanza

import (
	"encoding/xml"
	"fmt"
)

const NSMUCUser = "http://jabber.org/protocol/muc#user"

// Presence types the bot acts on. Available presence has no type attribute.
const (
	PresenceAvailable   = ""
	PresenceUnavailable = "unavailable"
	PresenceError       = "error"
)

// StatusSelfPresence marks the room's presence about the bot's own occupant.
const StatusSelfPresence = 110

// UserItem is the <item/> a room attaches to occupant presence. JID is the
// occupant's real JID and is empty when the room does not disclose it.
type UserItem struct {
	JID         string `xml:"jid,attr,omitempty"`
	Nick        string `xml:"nick,attr,omitempty"`
	Affiliation string `xml:"affiliation,attr,omitempty"`
	Role        string `xml:"role,attr,omitempty"`
}

// Presence is an inbound <presence/> stanza.
type Presence struct {
	From string
	To   string
	Type string
	// Item is set for presence carrying muc#user data.
	Item     *UserItem
	Statuses []int
}

// HasStatus reports whether the room attached status code.
func (p Presence) HasStatus(code int) bool {
	for _, c := range p.Statuses {
		if c == code {
			return true
		}
	}
	return false
}

type userStatus struct {
	Code int `xml:"code,attr"`
}

type userX struct {
	Items    []UserItem   `xml:"item"`
	Statuses []userStatus `xml:"status"`
}

type inboundPresence struct {
	XMLName xml.Name `xml:"presence"`
	From    string   `xml:"from,attr"`
	To      string   `xml:"to,attr"`
	Type    string   `xml:"type,attr"`
	User    *userX   `xml:"http://jabber.org/protocol/muc#user x"`
}

// ParsePresence decodes a <presence/> read from the stream.
func ParsePresence(raw []byte) (Presence, error) {
	var in inboundPresence
	if err := xml.Unmarshal(raw, &in); err != nil {
		return Presence{}, fmt.Errorf("parse presence: %w", err)
	}
	p := Presence{From: in.From, To: in.To, Type: in.Type}
	if in.User != nil {
		if len(in.User.Items) > 0 {
			item := in.User.Items[0]
			p.Item = &item
		}
		for _, s := range in.User.Statuses {
			p.Statuses = append(p.Statuses, s.Code)
		}
	}
	return p, nil
}
