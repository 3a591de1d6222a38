// Package client provides a websocket client session that survives
// network drops. On every (re)connect it replays its room subscriptions
// so the server-side fan-out state is rebuilt without caller help.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pranab56/TradeLog-sub000/internal/realtime"
	"github.com/pranab56/TradeLog-sub000/pkg/apperr"
)

// State is the connection lifecycle of a Client.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Conn is the subset of a websocket connection the client needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens a Conn. The production implementation wraps
// gorilla/websocket; tests substitute scripted fakes.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct {
	d *websocket.Dialer
}

// NewDialer returns a Dialer backed by gorilla/websocket.
func NewDialer(handshakeTimeout time.Duration) Dialer {
	return &wsDialer{d: &websocket.Dialer{HandshakeTimeout: handshakeTimeout}}
}

func (w *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := w.d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type roomPayload struct {
	ConversationID string `json:"conversation_id"`
}

// Options configure a Client.
type Options struct {
	URL            string
	Dialer         Dialer
	Logger         *zap.SugaredLogger
	EventBuffer    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o *Options) defaults() {
	if o.Dialer == nil {
		o.Dialer = NewDialer(10 * time.Second)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.EventBuffer == 0 {
		o.EventBuffer = 64
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 30 * time.Second
	}
}

// Client is a reconnecting session. All methods are safe for
// concurrent use.
type Client struct {
	opts   Options
	log    *zap.SugaredLogger
	events chan realtime.Envelope

	mu     sync.Mutex
	state  State
	conn   Conn
	rooms  map[string]struct{}
	cancel context.CancelFunc
	done   chan struct{}

	// wmu serializes frame writes; the websocket allows only one
	// concurrent writer.
	wmu sync.Mutex
}

// New creates a Client. The session does not connect until Start.
func New(opts Options) *Client {
	opts.defaults()
	return &Client{
		opts:   opts,
		log:    opts.Logger,
		events: make(chan realtime.Envelope, opts.EventBuffer),
		state:  StateDisconnected,
		rooms:  make(map[string]struct{}),
		done:   make(chan struct{}),
	}
}

// Events delivers server pushes. The channel is closed when the client
// closes.
func (c *Client) Events() <-chan realtime.Envelope {
	return c.events
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins the connect loop. It returns immediately; connection
// progress is observable via State and Events.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return apperr.TransientIO("client is closed", nil)
	}
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	go c.run(runCtx)
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.events)
	defer close(c.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.InitialBackoff
	bo.MaxInterval = c.opts.MaxBackoff
	bo.MaxElapsedTime = 0 // retry forever

	for {
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return
		}
		conn, err := c.opts.Dialer.Dial(ctx, c.opts.URL)
		if err != nil {
			c.setState(StateReconnecting)
			wait := bo.NextBackOff()
			c.log.Debugw("dial failed, backing off", "wait", wait, "error", err)
			select {
			case <-ctx.Done():
				c.setState(StateClosed)
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		c.mu.Lock()
		// Close (or context cancellation) may have raced the dial. A
		// closed client never takes ownership of a late connection.
		if ctx.Err() != nil || c.state == StateClosed {
			c.mu.Unlock()
			_ = conn.Close()
			c.setState(StateClosed)
			return
		}
		c.conn = conn
		c.state = StateConnected
		rooms := make([]string, 0, len(c.rooms))
		for id := range c.rooms {
			rooms = append(rooms, id)
		}
		c.mu.Unlock()

		// Rejoin everything the caller is tracking. The server treats
		// duplicate joins as no-ops so this is safe after any kind of
		// drop.
		for _, id := range rooms {
			if err := c.writeFrame(conn, outbound{
				Type:    "join-conversation",
				Payload: roomPayload{ConversationID: id},
			}); err != nil {
				c.log.Warnw("rejoin failed", "conversation", id, "error", err)
				break
			}
		}

		c.readUntilError(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		if c.state != StateClosed {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		_ = conn.Close()
	}
}

func (c *Client) readUntilError(ctx context.Context, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debugw("dropping malformed frame", "error", err)
			continue
		}
		select {
		case c.events <- env:
		case <-ctx.Done():
			return
		default:
			c.log.Warnw("event buffer full, dropping", "type", env.Type)
		}
	}
}

func (c *Client) writeFrame(conn Conn, out outbound) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return conn.WriteJSON(out)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state != StateClosed || s == StateClosed {
		c.state = s
	}
	c.mu.Unlock()
}

// Join subscribes to a conversation. The subscription persists across
// reconnects.
func (c *Client) Join(conversationID string) error {
	if conversationID == "" {
		return apperr.Validation("conversation id must not be empty")
	}
	c.mu.Lock()
	c.rooms[conversationID] = struct{}{}
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateConnected {
		return nil // replayed on next connect
	}
	return c.writeFrame(conn, outbound{
		Type:    "join-conversation",
		Payload: roomPayload{ConversationID: conversationID},
	})
}

// Leave drops a subscription. It is not replayed on reconnect.
func (c *Client) Leave(conversationID string) error {
	c.mu.Lock()
	delete(c.rooms, conversationID)
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateConnected {
		return nil
	}
	return c.writeFrame(conn, outbound{
		Type:    "leave-conversation",
		Payload: roomPayload{ConversationID: conversationID},
	})
}

// Send pushes one frame. It fails fast while the session is not
// connected; callers fall back to REST for anything that must not be
// lost.
func (c *Client) Send(msgType string, payload any) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateConnected || conn == nil {
		return apperr.TransientIO("session is "+state.String(), nil)
	}
	return c.writeFrame(conn, outbound{Type: msgType, Payload: payload})
}

// Close terminates the session permanently. A closed client never
// reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
		<-c.done
	}
	return nil
}
