package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultJoinTimeout          = 10 * time.Second
	DefaultHeartbeatInterval    = 25 * time.Second
	DefaultStaleTimeout         = 60 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultConnectTimeout       = 30 * time.Second
	DefaultCloseTimeout         = 10 * time.Second
	DefaultMinConnectInterval   = 5 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultReconnectMaxJitter   = 1 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultFeedLimit            = 200
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultPollInterval         = 5 * time.Second
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
)

func (c *FeedConfig) applyDefaults() {
	// Realtime defaults
	if c.Realtime.HandshakeTimeout == 0 {
		c.Realtime.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Realtime.JoinTimeout == 0 {
		c.Realtime.JoinTimeout = DefaultJoinTimeout
	}
	if c.Realtime.HeartbeatInterval == 0 {
		c.Realtime.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Realtime.StaleTimeout == 0 {
		c.Realtime.StaleTimeout = DefaultStaleTimeout
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = DefaultWriteTimeout
	}

	// Reactions defaults
	if c.Reactions.HandshakeTimeout == 0 {
		c.Reactions.HandshakeTimeout = DefaultConnectTimeout
	}
	if c.Reactions.CloseTimeout == 0 {
		c.Reactions.CloseTimeout = DefaultCloseTimeout
	}
	if c.Reactions.MinConnectInterval == 0 {
		c.Reactions.MinConnectInterval = DefaultMinConnectInterval
	}
	if c.Reactions.ReconnectBaseDelay == 0 {
		c.Reactions.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Reactions.ReconnectMaxDelay == 0 {
		c.Reactions.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Reactions.ReconnectMaxJitter == 0 {
		c.Reactions.ReconnectMaxJitter = DefaultReconnectMaxJitter
	}
	if c.Reactions.MaxReconnectAttempts == 0 {
		c.Reactions.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Reactions.FeedLimit == 0 {
		c.Reactions.FeedLimit = DefaultFeedLimit
	}
	if c.Reactions.EchoSelf == nil {
		c.Reactions.EchoSelf = boolPtr(true)
	}
	if c.Reactions.RequireAck == nil {
		c.Reactions.RequireAck = boolPtr(true)
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func boolPtr(v bool) *bool { return &v }
