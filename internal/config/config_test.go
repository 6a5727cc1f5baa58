package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-stagefeed
  tenant_id: tenant-1
realtime:
  url: wss://relay.example.com/socket
database:
  host: localhost
  port: 5432
  name: test_db
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-stagefeed" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-stagefeed")
	}
	if cfg.Instance.TenantID != "tenant-1" {
		t.Errorf("Instance.TenantID = %q, want %q", cfg.Instance.TenantID, "tenant-1")
	}
	if cfg.Realtime.URL != "wss://relay.example.com/socket" {
		t.Errorf("Realtime.URL = %q, want %q", cfg.Realtime.URL, "wss://relay.example.com/socket")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_RELAY_KEY", "anon-key")

	yaml := `
instance:
  id: test-stagefeed
  tenant_id: tenant-1
realtime:
  url: wss://relay.example.com/socket
  api_key: ${TEST_RELAY_KEY}
database:
  host: localhost
  name: test_db
  user: testuser
  password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Password != "secret123" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "secret123")
	}
	if cfg.Realtime.APIKey != "anon-key" {
		t.Errorf("Realtime.APIKey = %q, want %q", cfg.Realtime.APIKey, "anon-key")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-stagefeed
  tenant_id: tenant-1
realtime:
  url: wss://relay.example.com/socket
database:
  host: localhost
  name: test_db
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Reactions.HandshakeTimeout != DefaultConnectTimeout {
		t.Errorf("Reactions.HandshakeTimeout = %v, want default %v", cfg.Reactions.HandshakeTimeout, DefaultConnectTimeout)
	}
	if cfg.Reactions.MinConnectInterval != DefaultMinConnectInterval {
		t.Errorf("Reactions.MinConnectInterval = %v, want default %v", cfg.Reactions.MinConnectInterval, DefaultMinConnectInterval)
	}
	if cfg.Reactions.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("Reactions.MaxReconnectAttempts = %d, want default %d", cfg.Reactions.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.Reactions.FeedLimit != DefaultFeedLimit {
		t.Errorf("Reactions.FeedLimit = %d, want default %d", cfg.Reactions.FeedLimit, DefaultFeedLimit)
	}
	if cfg.Reactions.EchoSelf == nil || !*cfg.Reactions.EchoSelf {
		t.Error("Reactions.EchoSelf should default to true")
	}
	if cfg.Reactions.RequireAck == nil || !*cfg.Reactions.RequireAck {
		t.Error("Reactions.RequireAck should default to true")
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Database.MaxConns != DefaultMaxConns {
		t.Errorf("Database.MaxConns = %d, want default %d", cfg.Database.MaxConns, DefaultMaxConns)
	}
	if cfg.Poller.Interval != DefaultPollInterval {
		t.Errorf("Poller.Interval = %v, want default %v", cfg.Poller.Interval, DefaultPollInterval)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
}

func TestExplicitFalseSurvivesDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-stagefeed
  tenant_id: tenant-1
realtime:
  url: wss://relay.example.com/socket
reactions:
  echo_self: false
  require_ack: false
database:
  host: localhost
  name: test_db
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Reactions.EchoSelf == nil || *cfg.Reactions.EchoSelf {
		t.Error("explicit echo_self: false was overwritten by defaults")
	}
	if cfg.Reactions.RequireAck == nil || *cfg.Reactions.RequireAck {
		t.Error("explicit require_ack: false was overwritten by defaults")
	}
}

func TestValidate(t *testing.T) {
	validDB := DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2}
	validReactions := ReactionsConfig{
		ReconnectBaseDelay:   time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 5,
		FeedLimit:            200,
	}

	tests := []struct {
		name    string
		cfg     FeedConfig
		wantErr string
	}{
		{
			name:    "missing instance id",
			cfg:     FeedConfig{},
			wantErr: "instance.id is required",
		},
		{
			name: "missing tenant id",
			cfg: FeedConfig{
				Instance: InstanceConfig{ID: "test"},
			},
			wantErr: "instance.tenant_id is required",
		},
		{
			name: "missing relay url",
			cfg: FeedConfig{
				Instance: InstanceConfig{ID: "test", TenantID: "t1"},
			},
			wantErr: "realtime.url is required",
		},
		{
			name: "relay url wrong scheme",
			cfg: FeedConfig{
				Instance: InstanceConfig{ID: "test", TenantID: "t1"},
				Realtime: RealtimeConfig{URL: "https://relay.example.com"},
			},
			wantErr: `realtime.url must be a ws:// or wss:// URL, got "https://relay.example.com"`,
		},
		{
			name: "base delay exceeds max delay",
			cfg: FeedConfig{
				Instance: InstanceConfig{ID: "test", TenantID: "t1"},
				Realtime: RealtimeConfig{URL: "wss://relay.example.com"},
				Reactions: ReactionsConfig{
					ReconnectBaseDelay:   time.Minute,
					ReconnectMaxDelay:    30 * time.Second,
					MaxReconnectAttempts: 5,
					FeedLimit:            200,
				},
			},
			wantErr: "reactions.reconnect_base_delay (1m0s) cannot exceed reconnect_max_delay (30s)",
		},
		{
			name: "missing database host",
			cfg: FeedConfig{
				Instance:  InstanceConfig{ID: "test", TenantID: "t1"},
				Realtime:  RealtimeConfig{URL: "wss://relay.example.com"},
				Reactions: validReactions,
			},
			wantErr: "database.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			cfg: FeedConfig{
				Instance:  InstanceConfig{ID: "test", TenantID: "t1"},
				Realtime:  RealtimeConfig{URL: "wss://relay.example.com"},
				Reactions: validReactions,
				Database:  DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10},
			},
			wantErr: "database.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "valid config",
			cfg: FeedConfig{
				Instance:  InstanceConfig{ID: "test", TenantID: "t1"},
				Realtime:  RealtimeConfig{URL: "wss://relay.example.com"},
				Reactions: validReactions,
				Database:  validDB,
				Poller:    PollerConfig{Interval: 5 * time.Second},
				Metrics:   MetricsConfig{Port: 9090},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
