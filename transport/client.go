package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// State is the connection state, owned exclusively by the client.
// Transitions are pushed to the status callback, never requested by
// observers.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

var (
	ErrAlreadyConnected = errors.New("transport: connection already active")
	ErrConnectionFailed = errors.New("transport: connection failed")
	ErrAbnormalClosure  = errors.New("transport: connection closed abnormally")
	ErrServerReported   = errors.New("transport: server reported error")
)

// Callbacks deliver client events. OnState receives every transition;
// a remote abnormal closure reports StateDisconnected, distinguished
// from a local disconnect only by OnError having fired.
type Callbacks struct {
	OnState      func(State)
	OnTranscript func(Transcript)
	OnError      func(error)
}

// Stats tracks send-side counters. Diagnostics only.
type Stats struct {
	FramesSent  uint64
	BytesSent   uint64
	FramesAcked uint64
}

// Option configures a Client.
type Option func(*Client)

// WithToken attaches a bearer token to the connection handshake.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithReconnect enables automatic redial after abnormal closure.
func WithReconnect(p ReconnectPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// Client owns one persistent connection to the transcription backend.
// Outbound segments go out as binary frames in FIFO order; inbound
// JSON envelopes are dispatched to the callbacks.
type Client struct {
	url    string
	token  string
	dialer *websocket.Dialer
	cbs    Callbacks
	policy ReconnectPolicy

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	state     State
	sessionID string
	closing   bool
	stats     Stats
	readDone  chan struct{}
}

func NewClient(url string, cbs Callbacks, opts ...Option) *Client {
	c := &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
		cbs:    cbs,
		state:  StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the connection and blocks until the websocket
// handshake completes or fails. The session identifier arrives on the
// first inbound envelope afterwards; segments sent before it lands are
// not dropped.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.closing = false
	c.mu.Unlock()

	c.setState(StateConnecting)

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		c.setState(StateError)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.readDone = done
	c.mu.Unlock()

	c.setState(StateConnected)
	go c.readPump(conn, done)

	slog.Debug("Transport connected", "url", c.url)
	return nil
}

func (c *Client) readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			if c.conn == conn {
				c.conn = nil
				c.sessionID = ""
			}
			c.mu.Unlock()

			if closing {
				return
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Server closed connection", "error", err)
			} else {
				slog.Error("Connection closed abnormally", "error", err)
				if c.cbs.OnError != nil {
					c.cbs.OnError(fmt.Errorf("%w: %v", ErrAbnormalClosure, err))
				}
			}
			c.setState(StateDisconnected)
			c.maybeReconnect()
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	msg, err := decodeInbound(data)
	if err != nil {
		slog.Warn("Dropping malformed inbound message", "error", err)
		return
	}

	switch m := msg.(type) {
	case Connected:
		c.mu.Lock()
		c.sessionID = m.SessionID
		c.mu.Unlock()
		slog.Info("Session established", "sessionID", m.SessionID)
	case Ack:
		c.mu.Lock()
		c.stats.FramesAcked++
		c.mu.Unlock()
		slog.Debug("Chunk acknowledged", "chunk", m.ChunkNumber, "size", m.Size)
	case Transcript:
		if c.cbs.OnTranscript != nil {
			c.cbs.OnTranscript(m)
		}
	case ServerError:
		slog.Warn("Server reported error", "message", m.Message)
		if c.cbs.OnError != nil {
			c.cbs.OnError(fmt.Errorf("%w: %s", ErrServerReported, m.Message))
		}
	case Unknown:
		slog.Debug("Ignoring unknown message type", "type", m.Type)
	}
}

// SendAudio writes one segment as a binary frame. When the client is
// not connected the segment is dropped with a warning instead of an
// error: the recording keeps running even when delivery cannot be
// guaranteed. Frames go out in call order.
func (c *Client) SendAudio(data []byte) {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		slog.Warn("Dropping audio segment, connection not ready",
			"state", string(state),
			"bytes", len(data))
		return
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteMessage(websocket.BinaryMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		slog.Error("Failed to send audio segment", "error", err, "bytes", len(data))
		if c.cbs.OnError != nil {
			c.cbs.OnError(fmt.Errorf("transport: send failed: %w", err))
		}
		return
	}

	c.mu.Lock()
	c.stats.FramesSent++
	c.stats.BytesSent += uint64(len(data))
	c.mu.Unlock()
}

// Disconnect closes the connection with a normal-closure code, clears
// the session identifier, and resets send statistics. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	done := c.readDone
	c.closing = true
	c.conn = nil
	c.sessionID = ""
	c.stats = Stats{}
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		conn.Close()
		if done != nil {
			<-done
		}
	}

	c.setState(StateDisconnected)
}

// SessionID returns the server-assigned identifier, or empty when no
// connected envelope has arrived on the current connection.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of send-side counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.cbs.OnState != nil {
		c.cbs.OnState(s)
	}
}
