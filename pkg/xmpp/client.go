package xmpp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"mellium.im/sasl"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/dial"
	"mellium.im/xmpp/jid"

	"github.com/tinyland-inc/mucclaw/pkg/bus"
	"github.com/tinyland-inc/mucclaw/pkg/config"
	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

// ErrStreamClosed is returned by Listen when the server ends the stream.
var ErrStreamClosed = errors.New("xmpp: stream closed by server")

// handlerFunc receives one top-level element. r yields the rest of the
// element up to and including its end tag.
type handlerFunc func(r xml.TokenReader, start *xml.StartElement) error

// stream is the part of an XMPP session the transport uses.
type stream interface {
	Serve(h handlerFunc) error
	Send(ctx context.Context, r xml.TokenReader) error
	Close() error
}

type dialFunc func(ctx context.Context) (stream, error)

type melliumStream struct {
	s *xmpp.Session
}

func (m melliumStream) Serve(h handlerFunc) error {
	return m.s.Serve(xmpp.HandlerFunc(func(t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
		return h(t, start)
	}))
}

func (m melliumStream) Send(ctx context.Context, r xml.TokenReader) error {
	return m.s.Send(ctx, r)
}

// Close ends the stream and the connection under it.
func (m melliumStream) Close() error {
	err := m.s.Close()
	if cerr := m.s.Conn().Close(); err == nil {
		err = cerr
	}
	return err
}

// Client is a Transport over a client-to-server stream.
type Client struct {
	acct config.AccountConfig
	dial dialFunc

	mu         sync.Mutex
	self       string
	stream     stream
	onPresence func(stanza.Presence)

	pending   *pending
	closed    chan struct{}
	closeOnce sync.Once
}

func NewClient(acct config.AccountConfig) *Client {
	c := &Client{
		acct:    acct,
		self:    acct.FullJID(),
		pending: newPending(),
		closed:  make(chan struct{}),
	}
	c.dial = c.dialServer
	return c
}

func tlsConfig(acct config.AccountConfig) *tls.Config {
	serverName := ""
	if j, err := jid.Parse(acct.JID); err == nil {
		serverName = j.Domainpart()
	}
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: acct.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
}

// features lists what is negotiated after the connection is up. StartTLS
// upgrades a plain connection; with neither TLS mode set the connection is
// already direct TLS.
func features(acct config.AccountConfig, cfg *tls.Config) []xmpp.StreamFeature {
	var f []xmpp.StreamFeature
	if acct.StartTLS && !acct.NoTLS {
		f = append(f, xmpp.StartTLS(cfg))
	}
	return append(f,
		xmpp.SASL("", acct.Password,
			sasl.ScramSha256Plus, sasl.ScramSha256,
			sasl.ScramSha1Plus, sasl.ScramSha1,
			sasl.Plain,
		),
		xmpp.BindResource(),
	)
}

// initialState is the session state before negotiation. Authentication is
// only offered on a secure stream, so an explicit no_tls account declares
// its plain connection secure.
func initialState(acct config.AccountConfig) xmpp.SessionState {
	if acct.NoTLS {
		return xmpp.Secure
	}
	return 0
}

// dialConn opens the connection. With an explicit host the address is used
// as given; otherwise the domain's SRV records are looked up.
func dialConn(ctx context.Context, acct config.AccountConfig, origin jid.JID, cfg *tls.Config) (net.Conn, error) {
	direct := !acct.NoTLS && !acct.StartTLS
	if acct.Host == "" {
		d := dial.Dialer{NoTLS: !direct, TLSConfig: cfg}
		return d.Dial(ctx, "tcp", origin)
	}

	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", acct.ServerAddr())
	if err != nil {
		return nil, err
	}
	if !direct {
		return conn, nil
	}
	tc := tls.Client(conn, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tc, nil
}

func (c *Client) dialServer(ctx context.Context) (stream, error) {
	origin, err := jid.Parse(c.acct.FullJID())
	if err != nil {
		return nil, fmt.Errorf("account jid: %w", err)
	}
	cfg := tlsConfig(c.acct)
	conn, err := dialConn(ctx, c.acct, origin, cfg)
	if err != nil {
		return nil, err
	}

	feats := features(c.acct, cfg)
	s, err := xmpp.NewSession(ctx, origin.Domain(), origin, conn, initialState(c.acct),
		xmpp.NewNegotiator(func(*xmpp.Session, *xmpp.StreamConfig) xmpp.StreamConfig {
			return xmpp.StreamConfig{Features: feats}
		}),
	)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// The server may bind another resource than the one requested.
	c.mu.Lock()
	c.self = s.LocalAddr().String()
	c.mu.Unlock()
	return melliumStream{s: s}, nil
}

func (c *Client) JID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// OnPresence registers fn for every inbound presence. Call it before Listen.
func (c *Client) OnPresence(fn func(stanza.Presence)) {
	c.mu.Lock()
	c.onPresence = fn
	c.mu.Unlock()
}

// Connect dials, secures, authenticates and binds.
func (c *Client) Connect(ctx context.Context) error {
	st, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.acct.ServerAddr(), err)
	}
	if err := ctx.Err(); err != nil {
		st.Close()
		return err
	}
	c.mu.Lock()
	c.stream = st
	c.mu.Unlock()
	logger.InfoCF("xmpp", "Connected", map[string]any{
		"jid":  c.JID(),
		"host": c.acct.ServerAddr(),
	})
	return nil
}

func (c *Client) connection() (stream, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil, ErrNotConnected
	}
	return c.stream, nil
}

func (c *Client) write(ctx context.Context, raw string) error {
	st, err := c.connection()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := st.Send(ctx, wireTokens(raw)); err != nil {
		return fmt.Errorf("write stanza: %w", err)
	}
	return nil
}

func (c *Client) SendPresence(ctx context.Context) error {
	return c.write(ctx, stanza.AvailablePresence())
}

func (c *Client) JoinRoom(ctx context.Context, room, nick, password string) error {
	raw, err := stanza.JoinPresence(room, nick, password)
	if err != nil {
		return err
	}
	if err := c.write(ctx, raw); err != nil {
		return fmt.Errorf("join %s: %w", room, err)
	}
	logger.InfoCF("xmpp", "Joined room", map[string]any{
		"room": room,
		"nick": nick,
	})
	return nil
}

func (c *Client) Send(ctx context.Context, msg stanza.Message) error {
	if msg.ID == "" {
		msg.ID = stanza.NewID()
	}
	raw, err := msg.XML()
	if err != nil {
		return err
	}
	return c.write(ctx, raw)
}

func (c *Client) Query(ctx context.Context, iq stanza.IQ) (stanza.IQ, error) {
	if iq.ID == "" {
		iq.ID = stanza.NewID()
	}
	raw, err := iq.XML()
	if err != nil {
		return stanza.IQ{}, err
	}

	ch, forget := c.pending.register(iq.ID)
	defer forget()

	if err := c.write(ctx, raw); err != nil {
		return stanza.IQ{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-c.closed:
		return stanza.IQ{}, ErrClosed
	case <-ctx.Done():
		return stanza.IQ{}, fmt.Errorf("query %s to %s: %w", iq.ID, iq.To, ctx.Err())
	}
}

// Listen reads the stream until ctx ends or the connection fails. The
// connection is closed on return, which fails every pending query.
func (c *Client) Listen(ctx context.Context, b *bus.MessageBus) error {
	st, err := c.connection()
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()
	defer c.Close()

	err = st.Serve(func(r xml.TokenReader, start *xml.StartElement) error {
		raw, err := capture(r, *start)
		if err != nil {
			return err
		}
		return c.dispatch(ctx, b, start.Name.Local, raw)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return ErrStreamClosed
	}
	return fmt.Errorf("receive: %w", err)
}

func (c *Client) dispatch(ctx context.Context, b *bus.MessageBus, name string, raw []byte) error {
	switch name {
	case "message":
		msg, err := stanza.ParseMessage(raw)
		if err != nil {
			logger.WarnCF("xmpp", "Dropped malformed message", map[string]any{"error": err.Error()})
			return nil
		}
		if err := b.PublishInbound(ctx, msg); err != nil {
			return fmt.Errorf("publish inbound: %w", err)
		}
	case "iq":
		iq, err := stanza.ParseIQ(raw)
		if err != nil || (iq.Type != stanza.IQResult && iq.Type != stanza.IQError) {
			return nil
		}
		if !c.pending.resolve(iq) {
			logger.DebugCF("xmpp", "Unmatched IQ response", map[string]any{
				"id":   iq.ID,
				"from": iq.From,
			})
		}
	case "presence":
		p, err := stanza.ParsePresence(raw)
		if err != nil {
			return nil
		}
		c.mu.Lock()
		fn := c.onPresence
		c.mu.Unlock()
		if fn != nil {
			fn(p)
		}
	}
	return nil
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		st := c.stream
		c.mu.Unlock()
		if st != nil {
			err = st.Close()
		}
	})
	return err
}

// capture re-encodes one element read from the stream so it can be decoded
// with its inner XML intact. Namespace declarations are dropped from the
// attributes because the encoder writes them from each element's name.
func capture(r xml.TokenReader, start xml.StartElement) ([]byte, error) {
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)
	if err := e.EncodeToken(withoutNSDecls(start)); err != nil {
		return nil, err
	}
	for depth := 1; depth > 0; {
		tok, err := r.Token()
		if err == io.EOF && depth == 1 {
			if err := e.EncodeToken(start.End()); err != nil {
				return nil, err
			}
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			tok = withoutNSDecls(t)
		case xml.EndElement:
			depth--
		case xml.ProcInst, xml.Directive:
			continue
		}
		if err := e.EncodeToken(xml.CopyToken(tok)); err != nil {
			return nil, err
		}
	}
	if err := e.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func withoutNSDecls(start xml.StartElement) xml.StartElement {
	out := start.Copy()
	out.Attr = out.Attr[:0]
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out.Attr = append(out.Attr, a)
	}
	return out
}

// nsTokens strips namespace declarations from decoded start elements for
// re-encoding.
type nsTokens struct {
	d *xml.Decoder
}

func (n nsTokens) Token() (xml.Token, error) {
	tok, err := n.d.Token()
	if start, ok := tok.(xml.StartElement); ok {
		tok = withoutNSDecls(start)
	}
	return tok, err
}

// wireTokens turns a rendered stanza into the token stream Send expects.
func wireTokens(raw string) xml.TokenReader {
	return nsTokens{d: xml.NewDecoder(strings.NewReader(raw))}
}
