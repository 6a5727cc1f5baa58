package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *FeedConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}
	if c.Instance.TenantID == "" {
		return errors.New("instance.tenant_id is required")
	}

	if c.Realtime.URL == "" {
		return errors.New("realtime.url is required")
	}
	if !strings.HasPrefix(c.Realtime.URL, "ws://") && !strings.HasPrefix(c.Realtime.URL, "wss://") {
		return fmt.Errorf("realtime.url must be a ws:// or wss:// URL, got %q", c.Realtime.URL)
	}

	if c.Reactions.MaxReconnectAttempts < 1 {
		return errors.New("reactions.max_reconnect_attempts must be >= 1")
	}
	if c.Reactions.FeedLimit < 1 {
		return errors.New("reactions.feed_limit must be >= 1")
	}
	if c.Reactions.ReconnectBaseDelay > c.Reactions.ReconnectMaxDelay {
		return fmt.Errorf("reactions.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.Reactions.ReconnectBaseDelay, c.Reactions.ReconnectMaxDelay)
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Poller.Interval <= 0 {
		return errors.New("poller.interval must be positive")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
