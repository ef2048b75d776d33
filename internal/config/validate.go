package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Client.ID == "" {
		return errors.New("client.id is required")
	}
	if _, err := ParseLevel(c.Client.LogLevel); err != nil {
		return fmt.Errorf("client.log_level: %w", err)
	}

	if c.Connection.Host == "" {
		return errors.New("connection.host is required")
	}
	if c.Connection.ReconnectMultiplier < 1 {
		return errors.New("connection.reconnect_multiplier must be >= 1")
	}
	if c.Connection.ReconnectMaxDelay < c.Connection.ReconnectBaseDelay {
		return errors.New("connection.reconnect_max_delay cannot be less than reconnect_base_delay")
	}
	if c.Connection.MaxAttempts < 0 {
		return errors.New("connection.max_attempts must be >= 0")
	}
	if c.Connection.PingInterval < 0 {
		return errors.New("connection.ping_interval must be >= 0")
	}
	if !c.Connection.DisablePing && c.Connection.PingInterval > 0 && c.Connection.PongTimeout <= c.Connection.PingInterval {
		return errors.New("connection.pong_timeout must exceed ping_interval")
	}

	if c.Session.Token == "" && c.Session.TokenFile == "" && c.Session.TokenEnv == "" {
		return errors.New("session requires one of token, token_file or token_env")
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Connectivity.Interval <= 0 {
		return errors.New("connectivity.interval must be > 0")
	}
	if c.Connectivity.Timeout <= 0 {
		return errors.New("connectivity.timeout must be > 0")
	}
	if c.Connectivity.Timeout > c.Connectivity.Interval {
		return errors.New("connectivity.timeout cannot exceed interval")
	}
	if c.Connectivity.FailureThreshold < 1 {
		return errors.New("connectivity.failure_threshold must be >= 1")
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < c.Journal.BatchSize {
			return errors.New("journal.buffer_size must be >= batch_size")
		}
	}

	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 0 and 65535, got %d", c.Health.Port)
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
