package connection

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no pong)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrEmptyToken       = errors.New("credential store returned an empty token")
)

// Close codes used by the manager and transports.
const (
	CloseNormal    = 1000 // clean, caller-initiated close
	CloseGoingAway = 1001 // client abandons a broken connection
	CloseAbnormal  = 1006 // connection dropped without a close frame
)

// State is the lifecycle state of the managed connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ConnectionError means the transport failed to open, failed while open,
// or could not be built (token, target).
type ConnectionError struct {
	Op  string // "token", "open", "transport", "send"
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Kind classifies the error for reporting.
func (e *ConnectionError) Kind() string { return "connection" }

// ProtocolError means an inbound frame was not a valid envelope. The frame
// is discarded and the connection stays up.
type ProtocolError struct {
	Size int
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: discarded malformed message (%d bytes): %v", e.Size, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Kind classifies the error for reporting.
func (e *ProtocolError) Kind() string { return "protocol" }

// RetriesExhaustedError means automatic recovery stopped. Only an explicit
// Reconnect (or Connect) resumes.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%v after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Last)
	}
	return fmt.Sprintf("%v after %d attempts", ErrRetriesExhausted, e.Attempts)
}

// Is matches ErrRetriesExhausted.
func (e *RetriesExhaustedError) Is(target error) bool {
	return target == ErrRetriesExhausted
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// Kind classifies the error for reporting.
func (e *RetriesExhaustedError) Kind() string { return "retries_exhausted" }

// TokenSource is the external credential store.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token calls f(ctx).
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Config configures the Connection Manager and its websocket transport.
type Config struct {
	Secure     bool   // wss when true, ws otherwise
	Host       string // host[:port]
	Path       string // e.g. /ws
	TokenParam string // query parameter carrying the auth token

	ReconnectBase        time.Duration // delay before the first automatic reconnect
	ReconnectMultiplier  float64       // growth factor per attempt
	ReconnectMax         time.Duration // cap on any single delay
	MaxAttempts          int           // automatic reconnects before giving up
	ManualReconnectDelay time.Duration // fixed delay used by Reconnect()

	DialTimeout  time.Duration // handshake timeout, also bounds the token lookup
	WriteTimeout time.Duration // write deadline for sends
	PingInterval time.Duration // websocket keepalive ping interval (0 disables)
	PongTimeout  time.Duration // max time without pong before the socket is stale
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:                 "/ws",
		TokenParam:           "token",
		ReconnectBase:        1 * time.Second,
		ReconnectMultiplier:  2,
		ReconnectMax:         30 * time.Second,
		MaxAttempts:          5,
		ManualReconnectDelay: 1 * time.Second,
		DialTimeout:          10 * time.Second,
		WriteTimeout:         5 * time.Second,
		PingInterval:         30 * time.Second,
		PongTimeout:          75 * time.Second,
	}
}

// Target builds the connection address for token.
func (c Config) Target(token string) (string, error) {
	if c.Host == "" {
		return "", errors.New("connection host is empty")
	}

	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	param := c.TokenParam
	if param == "" {
		param = "token"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     c.Host,
		Path:     c.Path,
		RawQuery: url.Values{param: []string{token}}.Encode(),
	}
	return u.String(), nil
}

// Backoff returns the reconnect delay policy.
func (c Config) Backoff() Backoff {
	return Backoff{
		Base:       c.ReconnectBase,
		Multiplier: c.ReconnectMultiplier,
		Max:        c.ReconnectMax,
	}
}

// Status is a point-in-time view of the manager for callers that render
// connection health.
type Status struct {
	State              State
	Online             bool // environment connectivity signal
	Attempts           int
	MaxAttempts        int
	Pending            int // envelopes waiting for the connection to open
	ReconnectScheduled bool
	RetriesExhausted   bool
	SessionID          string
}

// FullyConnected reports an open connection in an environment that is online.
func (s Status) FullyConnected() bool {
	return s.State == StateOpen && s.Online
}

// Label is a short human-readable status.
func (s Status) Label() string {
	switch {
	case s.State == StateOpen:
		return "connected"
	case s.State == StateConnecting && s.Attempts > 0:
		return "reconnecting"
	case s.State == StateConnecting:
		return "connecting"
	case s.ReconnectScheduled:
		return "reconnecting"
	case s.RetriesExhausted:
		return "disconnected (retries exhausted)"
	default:
		return "disconnected"
	}
}
