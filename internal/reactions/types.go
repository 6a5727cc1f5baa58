package reactions

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNoTenant         = errors.New("no tenant set")
	ErrNotConnected     = errors.New("not connected")
	ErrConnectTimeout   = errors.New("connect handshake timeout")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// State is the connection state of a Manager.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateReconnecting labels a connect attempt with a non-zero attempt
	// count. It is an observability label, not a distinct transition.
	StateReconnecting State = "reconnecting"
)

// Status is a subscription status reported by the channel provider.
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
)

// ConnectResult is the caller-facing outcome of a connect attempt.
type ConnectResult struct {
	OK      bool
	Message string
}

// TopicForTenant derives the broadcast topic for a tenant's reaction stream.
func TopicForTenant(tenantID string) string {
	return "reactions_" + tenantID
}

// Known reaction kinds. Unknown kinds are still counted but render with the
// fallback emoji.
const (
	ReactionLove    = "love"
	ReactionFire    = "fire"
	ReactionClap    = "clap"
	ReactionMusic   = "music"
	ReactionAmazing = "amazing"
)

// EmojiFor maps a reaction kind to its display symbol.
func EmojiFor(kind string) string {
	switch kind {
	case ReactionLove:
		return "❤️"
	case ReactionFire:
		return "\U0001f525"
	case ReactionClap:
		return "\U0001f44f"
	case ReactionMusic:
		return "\U0001f3b5"
	case ReactionAmazing:
		return "\U0001f60d"
	}
	return "\U0001f44d"
}

// Stats is a snapshot of the running reaction counters.
type Stats struct {
	Reactions     map[string]int // reaction kind → count
	TotalComments int
}

// FeedEntry is one item of the recent-activity feed, newest first.
type FeedEntry struct {
	ID        string
	Kind      string // "reaction" or "comment"
	Emoji     string // reaction entries only
	Text      string // comment entries only, truncated for display
	Reaction  string // reaction kind, empty for comments
	UserName  string
	Timestamp time.Time
}

// ReconnectState tracks the retry budget between attempts.
type ReconnectState struct {
	Attempts      int       // retries scheduled since the last success
	Reconnecting  bool      // true while a retry timer is pending
	LastAttemptAt time.Time // stamped immediately before each dial
}

// Envelope is an opaque broadcast payload handed up by the channel provider.
// The declared kind and tenant are unwrapped by the Aggregator; invalid
// shapes are discarded, not surfaced.
type Envelope struct {
	Event   string
	Payload json.RawMessage
}

// broadcastWire is the outer shape of every broadcast message.
type broadcastWire struct {
	Type     string          `json:"type"` // "reaction" or "comment"
	TenantID string          `json:"tenantId"`
	Data     json.RawMessage `json:"data"`
}

// reactionWire is the data shape of a reaction message.
type reactionWire struct {
	Type      string `json:"type"` // reaction kind
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
	TenantID  string `json:"tenantId"`
}

// commentWire is the data shape of a comment message.
type commentWire struct {
	Text      string `json:"text"`
	UserID    string `json:"userId,omitempty"`
	UserName  string `json:"userName,omitempty"`
	Timestamp int64  `json:"timestamp"` // ms since epoch
	TenantID  string `json:"tenantId"`
}

// outboundMessage is the broadcast shape sent by SendReaction/SendComment.
type outboundMessage struct {
	Type     string      `json:"type"`
	TenantID string      `json:"tenantId"`
	Data     interface{} `json:"data"`
}
