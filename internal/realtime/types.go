package realtime

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no traffic)")
	ErrChannelClosed   = errors.New("channel closed")
	ErrAckTimeout      = errors.New("broadcast ack timeout")
	ErrAlreadyClosed   = errors.New("client already closed")
)

// Protocol events. The relay speaks a Phoenix-style channel protocol: every
// websocket message is one frame, scoped to a topic.
const (
	evJoin      = "phx_join"
	evLeave     = "phx_leave"
	evReply     = "phx_reply"
	evError     = "phx_error"
	evClose     = "phx_close"
	evHeartbeat = "heartbeat"
	evBroadcast = "broadcast"

	// heartbeatTopic is the reserved topic for keepalive frames.
	heartbeatTopic = "phoenix"
)

// frame is one websocket message in the multiplexed channel protocol.
type frame struct {
	JoinRef string          `json:"join_ref,omitempty"`
	Ref     string          `json:"ref,omitempty"`
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// joinPayload carries the channel peer configuration in a phx_join.
type joinPayload struct {
	Config joinConfig `json:"config"`
}

type joinConfig struct {
	Broadcast broadcastOptions `json:"broadcast"`
}

type broadcastOptions struct {
	Self bool `json:"self"`
	Ack  bool `json:"ack"`
}

// replyPayload is the body of a phx_reply.
type replyPayload struct {
	Status   string          `json:"status"` // "ok" or "error"
	Response json.RawMessage `json:"response"`
}

// broadcastEnvelope wraps application payloads on the wire.
type broadcastEnvelope struct {
	Type    string          `json:"type"` // always "broadcast"
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ClientConfig configures the realtime client.
type ClientConfig struct {
	URL               string        // Relay websocket URL
	APIKey            string        // Bearer token, empty for none
	HandshakeTimeout  time.Duration // Websocket dial timeout
	JoinTimeout       time.Duration // Per-channel join reply timeout
	HeartbeatInterval time.Duration // Keepalive send interval
	StaleTimeout      time.Duration // Max silence before the socket is declared dead
	WriteTimeout      time.Duration // Write deadline for sends
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout:  10 * time.Second,
		JoinTimeout:       10 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		StaleTimeout:      60 * time.Second,
		WriteTimeout:      5 * time.Second,
	}
}
