package stanza

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	NSMUC      = "http://jabber.org/protocol/muc"
	NSMUCAdmin = "http://jabber.org/protocol/muc#admin"
)

// AdminCategory is one XEP-0045 admin list. Owners, admins and members are
// listed by affiliation, moderators by role.
type AdminCategory struct {
	Name  string
	Attr  string
	Value string
}

var (
	CategoryOwner     = AdminCategory{Name: "owner", Attr: "affiliation", Value: "owner"}
	CategoryAdmin     = AdminCategory{Name: "admin", Attr: "affiliation", Value: "admin"}
	CategoryMember    = AdminCategory{Name: "member", Attr: "affiliation", Value: "member"}
	CategoryModerator = AdminCategory{Name: "moderator", Attr: "role", Value: "moderator"}
)

// AdminCategories returns the four lists in roster order.
func AdminCategories() []AdminCategory {
	return []AdminCategory{CategoryOwner, CategoryAdmin, CategoryMember, CategoryModerator}
}

// AdminItem is an <item/> of a muc#admin query.
type AdminItem struct {
	JID         string `xml:"jid,attr,omitempty"`
	Nick        string `xml:"nick,attr,omitempty"`
	Affiliation string `xml:"affiliation,attr,omitempty"`
	Role        string `xml:"role,attr,omitempty"`
}

type adminQuery struct {
	XMLName xml.Name    `xml:"http://jabber.org/protocol/muc#admin query"`
	Items   []AdminItem `xml:"item"`
}

// AdminQuery builds the IQ get that lists category c of room.
func AdminQuery(room string, c AdminCategory) (IQ, error) {
	item := AdminItem{}
	switch c.Attr {
	case "affiliation":
		item.Affiliation = c.Value
	case "role":
		item.Role = c.Value
	default:
		return IQ{}, fmt.Errorf("unknown admin attribute %q", c.Attr)
	}
	payload, err := xml.Marshal(adminQuery{Items: []AdminItem{item}})
	if err != nil {
		return IQ{}, fmt.Errorf("marshal admin query: %w", err)
	}
	return IQ{
		ID:      NewID(),
		To:      Bare(room),
		Type:    IQGet,
		Payload: string(payload),
	}, nil
}

// ParseAdminItems extracts the items of a muc#admin result payload. An empty
// payload is an empty list.
func ParseAdminItems(payload string) ([]AdminItem, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, nil
	}
	var q adminQuery
	if err := xml.Unmarshal([]byte(payload), &q); err != nil {
		return nil, fmt.Errorf("parse admin items: %w", err)
	}
	return q.Items, nil
}

type mucHistory struct {
	MaxStanzas int `xml:"maxstanzas,attr"`
}

type mucJoin struct {
	XMLName  xml.Name   `xml:"http://jabber.org/protocol/muc x"`
	History  mucHistory `xml:"history"`
	Password string     `xml:"password,omitempty"`
}

type wirePresence struct {
	XMLName xml.Name `xml:"presence"`
	To      string   `xml:"to,attr,omitempty"`
	Join    *mucJoin
}

// JoinPresence renders the presence that joins room as nick. Room history is
// not requested so old messages are never answered again.
func JoinPresence(room, nick, password string) (string, error) {
	out, err := xml.Marshal(wirePresence{
		To:   Bare(room) + "/" + nick,
		Join: &mucJoin{Password: password},
	})
	if err != nil {
		return "", fmt.Errorf("marshal join presence: %w", err)
	}
	return string(out), nil
}

// AvailablePresence renders a bare available presence.
func AvailablePresence() string {
	return "<presence/>"
}
