package config

import "time"

// FeedConfig is the root configuration for a stagefeed instance.
type FeedConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Reactions ReactionsConfig `yaml:"reactions"`
	Database  DBConfig        `yaml:"database"`
	Poller    PollerConfig    `yaml:"poller"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this stagefeed and the tenant it serves.
type InstanceConfig struct {
	ID       string `yaml:"id"`
	TenantID string `yaml:"tenant_id"`
}

// RealtimeConfig holds relay websocket settings.
type RealtimeConfig struct {
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	JoinTimeout       time.Duration `yaml:"join_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	StaleTimeout      time.Duration `yaml:"stale_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// ReactionsConfig holds connection lifecycle and feed settings.
type ReactionsConfig struct {
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	CloseTimeout         time.Duration `yaml:"close_timeout"`
	MinConnectInterval   time.Duration `yaml:"min_connect_interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMaxJitter   time.Duration `yaml:"reconnect_max_jitter"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	FeedLimit            int           `yaml:"feed_limit"`
	EchoSelf             *bool         `yaml:"echo_self"`
	RequireAck           *bool         `yaml:"require_ack"`
}

// DBConfig holds the Postgres connection for queue state.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PollerConfig holds queue snapshot poller settings.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
