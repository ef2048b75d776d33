package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mohsale1/dino-sync/internal/connection"
	"github.com/mohsale1/dino-sync/internal/connectivity"
	"github.com/mohsale1/dino-sync/internal/protocol"
)

// ClientConfig is the root configuration for a sync client.
type ClientConfig struct {
	Client       InstanceConfig     `yaml:"client"`
	Connection   ConnectionConfig   `yaml:"connection"`
	Session      SessionConfig      `yaml:"session"`
	API          APIConfig          `yaml:"api"`
	Sync         SyncConfig         `yaml:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Journal      JournalConfig      `yaml:"journal"`
	Health       HealthConfig       `yaml:"health"`
}

// InstanceConfig identifies this client.
type InstanceConfig struct {
	ID       string `yaml:"id"`
	LogLevel string `yaml:"log_level"`
}

// ConnectionConfig holds realtime socket settings.
type ConnectionConfig struct {
	Secure               bool          `yaml:"secure"`
	Host                 string        `yaml:"host"`
	Path                 string        `yaml:"path"`
	TokenParam           string        `yaml:"token_param"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMultiplier  float64       `yaml:"reconnect_multiplier"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxAttempts          int           `yaml:"max_attempts"`
	ManualReconnectDelay time.Duration `yaml:"manual_reconnect_delay"`
	DialTimeout          time.Duration `yaml:"dial_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	// DisablePing turns the heartbeat off. An unset ping_interval gets the
	// default instead.
	DisablePing          bool          `yaml:"disable_ping"`
}

// SessionConfig says where the auth token comes from and which identity
// fields override the ones carried by the token.
type SessionConfig struct {
	Token     string `yaml:"token"`      // literal token, usually ${DINO_TOKEN}
	TokenFile string `yaml:"token_file"` // re-read on every connect
	TokenEnv  string `yaml:"token_env"`  // variable looked up on every connect

	UserID      string `yaml:"user_id"`
	VenueID     string `yaml:"venue_id"`
	WorkspaceID string `yaml:"workspace_id"`
	Role        string `yaml:"role"`
}

// APIConfig holds venue REST API settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// SyncConfig holds polling intervals for the synchronized views.
// Zero disables polling for that view.
type SyncConfig struct {
	OrdersInterval time.Duration `yaml:"orders_interval"`
	TablesInterval time.Duration `yaml:"tables_interval"`
	VenueInterval  time.Duration `yaml:"venue_interval"`
}

// ConnectivityConfig holds health probe settings.
type ConnectivityConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

// JournalConfig holds the optional envelope journal.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
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

// HealthConfig holds the local health endpoint settings. Port 0 disables it.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// ToConnection converts the connection section into connection.Config.
func (c *ClientConfig) ToConnection() connection.Config {
	cc := c.Connection
	if cc.DisablePing {
		cc.PingInterval = 0
	}
	return connection.Config{
		Secure:               cc.Secure,
		Host:                 cc.Host,
		Path:                 cc.Path,
		TokenParam:           cc.TokenParam,
		ReconnectBase:        cc.ReconnectBaseDelay,
		ReconnectMultiplier:  cc.ReconnectMultiplier,
		ReconnectMax:         cc.ReconnectMaxDelay,
		MaxAttempts:          cc.MaxAttempts,
		ManualReconnectDelay: cc.ManualReconnectDelay,
		DialTimeout:          cc.DialTimeout,
		WriteTimeout:         cc.WriteTimeout,
		PingInterval:         cc.PingInterval,
		PongTimeout:          cc.PongTimeout,
	}
}

// ToConnectivity converts the connectivity section into connectivity.Config.
func (c *ClientConfig) ToConnectivity() connectivity.Config {
	return connectivity.Config{
		Interval:         c.Connectivity.Interval,
		Timeout:          c.Connectivity.Timeout,
		FailureThreshold: c.Connectivity.FailureThreshold,
	}
}

// IdentityOverrides returns the identity fields set in the session section.
func (c *ClientConfig) IdentityOverrides() protocol.Identity {
	return protocol.Identity{
		UserID:      c.Session.UserID,
		VenueID:     c.Session.VenueID,
		WorkspaceID: c.Session.WorkspaceID,
		Role:        c.Session.Role,
	}
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
