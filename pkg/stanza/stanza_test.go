package stanza

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageXML_RendersBodyAndElements(t *testing.T) {
	msg := Message{
		ID:   "m1",
		To:   "room@muc.example.org",
		Type: TypeGroupchat,
		Body: "a < b",
	}
	msg = msg.WithElement(EME("urn:xmpp:omemo:2", "OMEMO"))

	out, err := msg.XML()
	require.NoError(t, err)
	assert.Contains(t, out, `id="m1"`)
	assert.Contains(t, out, `type="groupchat"`)
	assert.Contains(t, out, `<body>a &lt; b</body>`)
	assert.Contains(t, out, `xmlns="urn:xmpp:eme:0"`)
	assert.Contains(t, out, `namespace="urn:xmpp:omemo:2"`)
	assert.Contains(t, out, `name="OMEMO"`)
}

func TestMessageXML_SkipsDecodedNamespaceAttrs(t *testing.T) {
	el := NewElement("urn:example", "x", "<y/>", "xmlns", "urn:example", "k", "v")
	out, err := Message{ID: "m2"}.WithElement(el).XML()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, `xmlns="urn:example"`))
	assert.Contains(t, out, "<y/>")
}

func TestMessage_ElementAndNamespaces(t *testing.T) {
	msg := Message{Elements: []Element{
		NewElement("urn:a", "one", ""),
		NewElement("urn:b", "two", "", "k", "v"),
		NewElement("urn:a", "three", ""),
	}}

	el, ok := msg.Element("urn:b", "two")
	require.True(t, ok)
	assert.Equal(t, "v", el.Attr("k"))
	assert.Equal(t, "", el.Attr("missing"))

	_, ok = msg.Element("urn:c", "")
	assert.False(t, ok)

	assert.Equal(t, []string{"urn:a", "urn:b"}, msg.Namespaces())
}

func TestMessage_CloneDoesNotShareElements(t *testing.T) {
	orig := Message{Elements: []Element{NewElement("urn:a", "x", "")}}
	c := orig.Clone()
	c.Elements[0].InnerXML = "changed"
	assert.Equal(t, "", orig.Elements[0].InnerXML)
}

func TestMessageTypeConversational(t *testing.T) {
	assert.True(t, TypeChat.Conversational())
	assert.True(t, TypeGroupchat.Conversational())
	assert.True(t, TypeNormal.Conversational())
	assert.False(t, TypeHeadline.Conversational())
	assert.False(t, TypeError.Conversational())
	assert.False(t, MessageType("").Conversational())
}

func TestJIDHelpers(t *testing.T) {
	assert.Equal(t, "alice@example.org", Bare("alice@example.org/phone"))
	assert.Equal(t, "phone", Resource("alice@example.org/phone"))
	assert.Equal(t, "", Resource("alice@example.org"))
	assert.Equal(t, "Nick Name", Resource("room@muc.example.org/Nick Name"))
	assert.True(t, SameBare("alice@example.org/a", "alice@example.org/b"))
	assert.False(t, SameBare("alice@example.org", "bob@example.org"))
	assert.True(t, Equal(" alice@example.org/a", "alice@example.org/a"))
}

func TestAdminQuery(t *testing.T) {
	iq, err := AdminQuery("room@muc.example.org/nick", CategoryModerator)
	require.NoError(t, err)
	assert.Equal(t, IQGet, iq.Type)
	assert.Equal(t, "room@muc.example.org", iq.To)
	assert.NotEmpty(t, iq.ID)
	assert.Contains(t, iq.Payload, `xmlns="http://jabber.org/protocol/muc#admin"`)
	assert.Contains(t, iq.Payload, `role="moderator"`)
	assert.NotContains(t, iq.Payload, "affiliation=")

	iq, err = AdminQuery("room@muc.example.org", CategoryOwner)
	require.NoError(t, err)
	assert.Contains(t, iq.Payload, `affiliation="owner"`)

	_, err = AdminQuery("room@muc.example.org", AdminCategory{Name: "x", Attr: "bogus"})
	assert.Error(t, err)
}

func TestAdminCategoriesOrder(t *testing.T) {
	var names []string
	for _, c := range AdminCategories() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"owner", "admin", "member", "moderator"}, names)
}

func TestParseAdminItems(t *testing.T) {
	payload := `<query xmlns="http://jabber.org/protocol/muc#admin">
		<item affiliation="owner" jid="alice@example.org"/>
		<item affiliation="owner" jid="bot@example.org" nick="bot"/>
	</query>`
	items, err := ParseAdminItems(payload)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "alice@example.org", items[0].JID)
	assert.Equal(t, "bot", items[1].Nick)

	items, err = ParseAdminItems("  ")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = ParseAdminItems(`<query xmlns="urn:other"/>`)
	assert.Error(t, err)
}

func TestJoinPresence(t *testing.T) {
	out, err := JoinPresence("room@muc.example.org", "mucclaw", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, `to="room@muc.example.org/mucclaw"`)
	assert.Contains(t, out, `xmlns="http://jabber.org/protocol/muc"`)
	assert.Contains(t, out, `maxstanzas="0"`)
	assert.Contains(t, out, "<password>secret</password>")

	out, err = JoinPresence("room@muc.example.org", "mucclaw", "")
	require.NoError(t, err)
	assert.NotContains(t, out, "password")
}

func TestIQErr(t *testing.T) {
	iq := IQ{Type: IQError, Payload: `<query xmlns="http://jabber.org/protocol/muc#admin"/>` +
		`<error type="auth"><forbidden xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/>` +
		`<text xmlns="urn:ietf:params:xml:ns:xmpp-stanzas">not an owner</text></error>`}

	err := iq.Err()
	require.Error(t, err)
	assert.True(t, IsCondition(err, CondForbidden))
	assert.False(t, IsCondition(err, CondItemNotFound))

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "auth", se.Type)
	assert.Equal(t, "not an owner", se.Text)

	assert.NoError(t, IQ{Type: IQResult}.Err())
	assert.True(t, IsCondition(IQ{Type: IQError}.Err(), CondUndefined))
}

func TestIQXML(t *testing.T) {
	out, err := IQ{ID: "q1", To: "room@muc.example.org", Type: IQGet, Payload: "<query/>"}.XML()
	require.NoError(t, err)

	var back struct {
		XMLName xml.Name `xml:"iq"`
		ID      string   `xml:"id,attr"`
		Type    string   `xml:"type,attr"`
	}
	require.NoError(t, xml.Unmarshal([]byte(out), &back))
	assert.Equal(t, "q1", back.ID)
	assert.Equal(t, "get", back.Type)
	assert.Contains(t, out, "<query/>")
}

func TestIQReplies(t *testing.T) {
	req := IQ{ID: "q9", From: "bot@example.org/mucclaw", To: "room@muc.example.org", Type: IQGet}

	res := req.Result("<query/>")
	assert.Equal(t, "q9", res.ID)
	assert.Equal(t, IQResult, res.Type)
	assert.Equal(t, "room@muc.example.org", res.From)
	assert.Equal(t, "bot@example.org/mucclaw", res.To)
	assert.NoError(t, res.Err())

	errRes := req.ErrorReply("cancel", CondItemNotFound)
	assert.Equal(t, IQError, errRes.Type)
	err := errRes.Err()
	require.Error(t, err)
	assert.True(t, IsCondition(err, CondItemNotFound))
}

func TestParseMessage_KeepsIDAndExtensions(t *testing.T) {
	raw := `<message xmlns="jabber:client" id="m1" from="room@muc.example.org/alice" type="groupchat">` +
		`<body xmlns="jabber:client">hello</body>` +
		`<thread xmlns="jabber:client">t1</thread>` +
		`<encryption xmlns="urn:xmpp:eme:0" namespace="urn:xmpp:omemo:2"/>` +
		`<encrypted xmlns="eu.siacs.conversations.axolotl"><payload>AAAA</payload></encrypted>` +
		`</message>`

	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "room@muc.example.org/alice", msg.From)
	assert.Equal(t, TypeGroupchat, msg.Type)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, []string{NSEME, "eu.siacs.conversations.axolotl"}, msg.Namespaces())

	el, ok := msg.Element("eu.siacs.conversations.axolotl", "encrypted")
	require.True(t, ok)
	assert.Contains(t, el.InnerXML, "<payload")
	assert.Contains(t, el.InnerXML, "AAAA")
}

func TestParseMessage_DefaultsToNormal(t *testing.T) {
	msg, err := ParseMessage([]byte(`<message from="alice@example.org/phone"><body>x</body></message>`))
	require.NoError(t, err)
	assert.Equal(t, TypeNormal, msg.Type)
	assert.Empty(t, msg.Elements)

	_, err = ParseMessage([]byte(`<message`))
	assert.Error(t, err)
}

func TestParseIQ(t *testing.T) {
	raw := `<iq xmlns="jabber:client" id="q1" from="room@muc.example.org" type="result">` +
		`<query xmlns="http://jabber.org/protocol/muc#admin"><item jid="alice@example.org" affiliation="owner"/></query></iq>`
	iq, err := ParseIQ([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "q1", iq.ID)
	assert.Equal(t, IQResult, iq.Type)

	items, err := ParseAdminItems(iq.Payload)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "alice@example.org", items[0].JID)
}

func TestParsePresence_UserItem(t *testing.T) {
	raw := `<presence xmlns="jabber:client" from="room@muc.example.org/alice">` +
		`<x xmlns="http://jabber.org/protocol/muc#user">` +
		`<item jid="alice@example.org/phone" affiliation="member" role="participant"/>` +
		`<status code="110"/></x></presence>`
	p, err := ParsePresence([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "room@muc.example.org/alice", p.From)
	assert.Equal(t, PresenceAvailable, p.Type)
	require.NotNil(t, p.Item)
	assert.Equal(t, "alice@example.org/phone", p.Item.JID)
	assert.Equal(t, "member", p.Item.Affiliation)
	assert.True(t, p.HasStatus(StatusSelfPresence))

	p, err = ParsePresence([]byte(`<presence from="bob@example.org/pc" type="unavailable"/>`))
	require.NoError(t, err)
	assert.Nil(t, p.Item)
	assert.Equal(t, PresenceUnavailable, p.Type)
	assert.False(t, p.HasStatus(StatusSelfPresence))
}
