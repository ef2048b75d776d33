package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel             = "info"
	DefaultWSPath               = "/ws"
	DefaultTokenParam           = "token"
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMultiplier  = 2.0
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultMaxAttempts          = 5
	DefaultManualReconnectDelay = 1 * time.Second
	DefaultDialTimeout          = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultPongTimeout          = 75 * time.Second
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultOrdersInterval       = 30 * time.Second
	DefaultTablesInterval       = 60 * time.Second
	DefaultVenueInterval        = 5 * time.Minute
	DefaultProbeInterval        = 15 * time.Second
	DefaultProbeTimeout         = 5 * time.Second
	DefaultFailureThreshold     = 2
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultBatchSize            = 200
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 5000
)

func (c *ClientConfig) applyDefaults() {
	if c.Client.LogLevel == "" {
		c.Client.LogLevel = DefaultLogLevel
	}

	// Connection defaults
	if c.Connection.Path == "" {
		c.Connection.Path = DefaultWSPath
	}
	if c.Connection.TokenParam == "" {
		c.Connection.TokenParam = DefaultTokenParam
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMultiplier == 0 {
		c.Connection.ReconnectMultiplier = DefaultReconnectMultiplier
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.MaxAttempts == 0 {
		c.Connection.MaxAttempts = DefaultMaxAttempts
	}
	if c.Connection.ManualReconnectDelay == 0 {
		c.Connection.ManualReconnectDelay = DefaultManualReconnectDelay
	}
	if c.Connection.DialTimeout == 0 {
		c.Connection.DialTimeout = DefaultDialTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.PingInterval == 0 && !c.Connection.DisablePing {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PongTimeout == 0 {
		c.Connection.PongTimeout = DefaultPongTimeout
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Sync defaults
	if c.Sync.OrdersInterval == 0 {
		c.Sync.OrdersInterval = DefaultOrdersInterval
	}
	if c.Sync.TablesInterval == 0 {
		c.Sync.TablesInterval = DefaultTablesInterval
	}
	if c.Sync.VenueInterval == 0 {
		c.Sync.VenueInterval = DefaultVenueInterval
	}

	// Connectivity defaults
	if c.Connectivity.Interval == 0 {
		c.Connectivity.Interval = DefaultProbeInterval
	}
	if c.Connectivity.Timeout == 0 {
		c.Connectivity.Timeout = DefaultProbeTimeout
	}
	if c.Connectivity.FailureThreshold == 0 {
		c.Connectivity.FailureThreshold = DefaultFailureThreshold
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
