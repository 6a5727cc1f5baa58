package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/karaqr/realtime/internal/reactions"
)

// Client multiplexes broadcast channels over a single websocket connection
// to the relay. It implements reactions.Provider.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	done      chan struct{}
	channels  map[string]*channel
	pending   map[string]chan replyPayload
	refSeq    uint64
	lastSeen  time.Time

	// Write serialization
	writeMu sync.Mutex
}

// NewClient creates a realtime client. The socket is dialed lazily on the
// first OpenChannel call and re-dialed transparently after a loss.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		channels: make(map[string]*channel),
		pending:  make(map[string]chan replyPayload),
	}
}

// OpenChannel registers a handle on a named topic, dialing the socket if
// needed. The channel is inert until Subscribe sends the join.
func (c *Client) OpenChannel(ctx context.Context, topic string, opts reactions.ChannelConfig) (reactions.Channel, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	ch := &channel{
		client:   c,
		topic:    topic,
		opts:     opts,
		handlers: make(map[string]func(reactions.Envelope)),
	}

	c.mu.Lock()
	// A replaced handle is simply detached; its owner still calls Close.
	c.channels[topic] = ch
	c.mu.Unlock()

	return ch, nil
}

// Connected reports whether the underlying socket is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close tears down the socket and notifies all open channels with a CLOSED
// status. The client cannot be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		c.teardown(conn, nil)
	}
	return nil
}

// ensureConnected dials the relay if the socket is down.
func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	c.mu.Lock()
	if c.connected {
		// Lost a dial race; keep the winner's socket.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	done := make(chan struct{})
	c.conn = conn
	c.connected = true
	c.done = done
	c.lastSeen = time.Now()
	c.mu.Unlock()

	go c.readLoop(conn, done)
	go c.heartbeatLoop(conn, done)

	c.logger.Debug("relay socket connected", "url", c.cfg.URL)
	return nil
}

// readLoop reads frames and dispatches them until the socket dies.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Teardown already ran.
			default:
				c.teardown(conn, err)
			}
			return
		}

		c.mu.Lock()
		c.lastSeen = time.Now()
		c.mu.Unlock()

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping unparseable frame", "error", err)
			continue
		}
		c.dispatch(f)
	}
}

// dispatch routes one inbound frame.
func (c *Client) dispatch(f frame) {
	switch f.Event {
	case evReply:
		c.routeReply(f)

	case evBroadcast:
		c.mu.Lock()
		ch := c.channels[f.Topic]
		c.mu.Unlock()
		if ch != nil {
			ch.dispatchBroadcast(f.Payload)
		}

	case evError:
		c.dropChannel(f.Topic, reactions.StatusChannelError)

	case evClose:
		c.dropChannel(f.Topic, reactions.StatusClosed)

	default:
		c.logger.Debug("ignoring frame event", "event", f.Event, "topic", f.Topic)
	}
}

func (c *Client) routeReply(f frame) {
	var reply replyPayload
	if err := json.Unmarshal(f.Payload, &reply); err != nil {
		c.logger.Warn("dropping unparseable reply", "error", err)
		return
	}

	c.mu.Lock()
	waiter, ok := c.pending[f.Ref]
	if ok {
		delete(c.pending, f.Ref)
	}
	c.mu.Unlock()

	if ok {
		select {
		case waiter <- reply:
		default:
		}
	}
}

func (c *Client) dropChannel(topic string, status reactions.Status) {
	c.mu.Lock()
	ch := c.channels[topic]
	delete(c.channels, topic)
	c.mu.Unlock()

	if ch != nil {
		ch.notify(status)
	}
}

// heartbeatLoop keeps the socket alive and detects silent deaths.
func (c *Client) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			hb := frame{
				Ref:     c.nextRef(),
				Topic:   heartbeatTopic,
				Event:   evHeartbeat,
				Payload: json.RawMessage(`{}`),
			}
			if err := c.writeFrame(hb); err != nil {
				c.logger.Debug("failed to send heartbeat", "error", err)
			}

			c.mu.Lock()
			silent := time.Since(c.lastSeen)
			c.mu.Unlock()

			if silent > c.cfg.StaleTimeout {
				c.logger.Warn("no relay traffic, connection stale", "silent", silent)
				c.teardown(conn, ErrStaleConnection)
				return
			}
		}
	}
}

// teardown marks the socket dead, fails pending replies, and notifies all
// channels with a CLOSED status.
func (c *Client) teardown(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer socket owns the state.
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	chans := make([]*channel, 0, len(c.channels))
	for _, ch := range c.channels {
		chans = append(chans, ch)
	}
	c.channels = make(map[string]*channel)
	waiters := c.pending
	c.pending = make(map[string]chan replyPayload)
	c.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	conn.Close()

	if cause != nil {
		c.logger.Warn("relay socket lost", "error", cause)
	}

	for _, ch := range chans {
		ch.notify(reactions.StatusClosed)
	}
}

// writeFrame serializes and writes one frame with a deadline.
func (c *Client) writeFrame(f frame) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) nextRef() string {
	c.mu.Lock()
	c.refSeq++
	ref := c.refSeq
	c.mu.Unlock()
	return strconv.FormatUint(ref, 10)
}

func (c *Client) registerReply(ref string) chan replyPayload {
	waiter := make(chan replyPayload, 1)
	c.mu.Lock()
	c.pending[ref] = waiter
	c.mu.Unlock()
	return waiter
}

func (c *Client) dropReply(ref string) {
	c.mu.Lock()
	delete(c.pending, ref)
	c.mu.Unlock()
}

func (c *Client) detach(ch *channel) {
	c.mu.Lock()
	if c.channels[ch.topic] == ch {
		delete(c.channels, ch.topic)
	}
	c.mu.Unlock()
}
