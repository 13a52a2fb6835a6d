// Package relay implements walletkit.Connection over a websocket to a local
// relay bridge that speaks a small JSON envelope.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quantumauth-io/quantum-go-utils/log"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walletkit"
)

// Envelope types. Outbound requests are acknowledged with TypeAck carrying the
// same id.
const (
	TypePair              = "pair"
	TypeApproveSession    = "approve_session"
	TypeRejectSession     = "reject_session"
	TypeRespond           = "respond"
	TypeDisconnectSession = "disconnect_session"
	TypeDisconnectPairing = "disconnect_pairing"
	TypeAck               = "ack"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	eventBuffer      = 64
)

var ErrClosed = errors.New("relay connection closed")

// Envelope is the single message shape in both directions.
type Envelope struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Topic  string          `json:"topic,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan Envelope
	sessions map[string]walletkit.Session
	pairings map[string]walletkit.Pairing

	events    chan walletkit.Event
	closeCh   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ walletkit.Connection = (*Conn)(nil)

// Dial connects to endpoint, passing projectID as a query parameter.
func Dial(ctx context.Context, endpoint, projectID string) (*Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, walleterr.Validation("invalid relay url %q", endpoint)
	}
	q := u.Query()
	q.Set("projectId", projectID)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, u.String(), http.Header{})
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, walleterr.Network(err, "dial relay %s", endpoint)
	}

	c := &Conn{
		ws:       ws,
		pending:  make(map[string]chan Envelope),
		sessions: make(map[string]walletkit.Session),
		pairings: make(map[string]walletkit.Pairing),
		events:   make(chan walletkit.Event, eventBuffer),
		closeCh:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// NewDialer returns a walletkit.Dialer bound to endpoint.
func NewDialer(endpoint string) walletkit.Dialer {
	return walletkit.DialerFunc(func(ctx context.Context, projectID string) (walletkit.Connection, error) {
		return Dial(ctx, endpoint, projectID)
	})
}

func (c *Conn) Events() <-chan walletkit.Event { return c.events }

func (c *Conn) Pair(ctx context.Context, uri string) error {
	parsed, err := walletkit.ParsePairingURI(uri)
	if err != nil {
		return err
	}
	if _, err := c.request(ctx, TypePair, parsed.Topic, map[string]string{"uri": uri}); err != nil {
		return err
	}
	c.mu.Lock()
	c.pairings[parsed.Topic] = walletkit.Pairing{Topic: parsed.Topic, Active: true}
	c.mu.Unlock()
	return nil
}

func (c *Conn) ApproveSession(ctx context.Context, proposalID int64, namespaces map[string]walletkit.Namespace) (walletkit.Session, error) {
	ack, err := c.request(ctx, TypeApproveSession, "", map[string]any{
		"proposalId": proposalID,
		"namespaces": namespaces,
	})
	if err != nil {
		return walletkit.Session{}, err
	}
	var s walletkit.Session
	if err := json.Unmarshal(ack.Params, &s); err != nil || s.Topic == "" {
		return walletkit.Session{}, errors.Newf("relay returned no session for proposal %d", proposalID)
	}
	if s.Namespaces == nil {
		s.Namespaces = namespaces
	}
	c.mu.Lock()
	c.sessions[s.Topic] = s
	if s.PairingTopic != "" {
		c.pairings[s.PairingTopic] = walletkit.Pairing{Topic: s.PairingTopic, Active: true}
	}
	c.mu.Unlock()
	return s, nil
}

func (c *Conn) RejectSession(ctx context.Context, proposalID int64, reason walletkit.SDKError) error {
	_, err := c.request(ctx, TypeRejectSession, "", map[string]any{
		"proposalId": proposalID,
		"reason":     reason,
	})
	return err
}

func (c *Conn) Respond(ctx context.Context, topic string, resp walletkit.Response) error {
	_, err := c.request(ctx, TypeRespond, topic, resp)
	return err
}

func (c *Conn) ActiveSessions() []walletkit.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]walletkit.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func (c *Conn) Pairings() []walletkit.Pairing {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]walletkit.Pairing, 0, len(c.pairings))
	for _, p := range c.pairings {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func (c *Conn) DisconnectSession(ctx context.Context, topic string, reason walletkit.SDKError) error {
	if _, err := c.request(ctx, TypeDisconnectSession, topic, map[string]any{"reason": reason}); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.sessions, topic)
	c.mu.Unlock()
	return nil
}

func (c *Conn) DisconnectPairing(ctx context.Context, topic string, reason walletkit.SDKError) error {
	if _, err := c.request(ctx, TypeDisconnectPairing, topic, map[string]any{"reason": reason}); err != nil {
		return err
	}
	c.dropPairing(topic)
	return nil
}

// Close is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) request(ctx context.Context, typ, topic string, params any) (Envelope, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "encode %s", typ)
	}
	env := Envelope{Type: typ, ID: uuid.NewString(), Topic: topic, Params: raw}

	ch := make(chan Envelope, 1)
	c.mu.Lock()
	c.pending[env.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
	}()

	if err := c.write(env); err != nil {
		return Envelope{}, err
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return Envelope{}, walleterr.Network(nil, "relay refused %s: %s", typ, ack.Error)
		}
		return ack, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-c.closeCh:
		return Envelope{}, ErrClosed
	}
}

func (c *Conn) write(env Envelope) error {
	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return walleterr.Network(err, "relay write deadline")
	}
	if err := c.ws.WriteJSON(env); err != nil {
		return walleterr.Network(err, "relay write %s", env.Type)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.events)
	defer c.Close()

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			select {
			case <-c.closeCh:
			default:
				log.Warn("relay connection lost", "error", err)
			}
			return
		}

		if env.Type == TypeAck {
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			c.mu.Unlock()
			if ok {
				ch <- env
			}
			continue
		}

		ev, ok := c.toEvent(env)
		if !ok {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.closeCh:
			return
		}
	}
}

func (c *Conn) toEvent(env Envelope) (walletkit.Event, bool) {
	kind := walletkit.EventKind(env.Type)
	switch kind {
	case walletkit.EventSessionProposal:
		var p walletkit.Proposal
		if err := json.Unmarshal(env.Params, &p); err != nil {
			log.Warn("dropping malformed session proposal", "error", err)
			return walletkit.Event{}, false
		}
		return walletkit.Event{Kind: kind, Proposal: &p, Topic: p.PairingTopic}, true
	case walletkit.EventSessionRequest:
		var r walletkit.Request
		if err := json.Unmarshal(env.Params, &r); err != nil {
			log.Warn("dropping malformed session request", "error", err)
			return walletkit.Event{}, false
		}
		if r.Topic == "" {
			r.Topic = env.Topic
		}
		return walletkit.Event{Kind: kind, Request: &r, Topic: r.Topic}, true
	case walletkit.EventSessionDelete:
		c.mu.Lock()
		delete(c.sessions, env.Topic)
		c.mu.Unlock()
		return walletkit.Event{Kind: kind, Topic: env.Topic}, true
	case walletkit.EventPairingDelete:
		c.dropPairing(env.Topic)
		return walletkit.Event{Kind: kind, Topic: env.Topic}, true
	case walletkit.EventSessionPing:
		return walletkit.Event{Kind: kind, Topic: env.Topic}, true
	default:
		log.Warn("ignoring unknown relay message", "type", env.Type)
		return walletkit.Event{}, false
	}
}

// dropPairing forgets a pairing and every session that rode on it.
func (c *Conn) dropPairing(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pairings, topic)
	for t, s := range c.sessions {
		if s.PairingTopic == topic {
			delete(c.sessions, t)
		}
	}
}
