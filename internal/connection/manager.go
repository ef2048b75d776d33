package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohsale1/dino-sync/internal/clock"
	"github.com/mohsale1/dino-sync/internal/events"
	"github.com/mohsale1/dino-sync/internal/protocol"
	"github.com/mohsale1/dino-sync/internal/report"
)

// Manager owns the single realtime connection of a client session.
//
// All state transitions happen under one mutex. Bus publication, reporting,
// watchers and transport closes run after the mutex is released, so
// subscribers may call back into the Manager.
type Manager struct {
	cfg       Config
	transport Transport
	tokens    TokenSource
	bus       *events.Bus[protocol.Envelope]
	clock     clock.Clock
	logger    *slog.Logger
	reporter  report.Reporter
	tap       func(protocol.Envelope)
	sessionID uuid.UUID

	mu        sync.Mutex
	state     State
	conn      Conn
	gen       uint64 // bumped whenever the current transport is abandoned
	pending   []protocol.Envelope
	attempts  int
	timer     clock.Timer
	timerSeq  uint64
	exhausted bool
	identity  *protocol.Identity
	online    bool
	lastErr   error
	stats     Stats
	watchers  map[int]func(Status)
	watchSeq  int

	// Deferred until unlock
	outErrs     []error
	outClose    []closeReq
	outStatuses []Status
}

type closeReq struct {
	conn   Conn
	code   int
	reason string
}

// Stats counts traffic through the manager.
type Stats struct {
	Sent           int64
	Received       int64
	ProtocolErrors int64
	Opens          int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for envelope timestamps and reconnect timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithReporter sets the error reporter.
func WithReporter(r report.Reporter) Option {
	return func(m *Manager) { m.reporter = r }
}

// WithTap registers a function that sees every parsed inbound envelope
// before it is published.
func WithTap(fn func(protocol.Envelope)) Option {
	return func(m *Manager) { m.tap = fn }
}

// NewManager creates a Manager in the Idle state. Nothing is dialed until
// Connect is called.
func NewManager(cfg Config, transport Transport, tokens TokenSource, bus *events.Bus[protocol.Envelope], opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		transport: transport,
		tokens:    tokens,
		bus:       bus,
		sessionID: uuid.New(),
		state:     StateIdle,
		online:    true,
		watchers:  make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "connection", "session", m.sessionID.String())
	if m.reporter == nil {
		m.reporter = report.Log(m.logger)
	}
	return m
}

// Bus returns the event bus inbound envelopes are published on.
func (m *Manager) Bus() *events.Bus[protocol.Envelope] {
	return m.bus
}

// SessionID identifies this manager instance in logs and journals.
func (m *Manager) SessionID() uuid.UUID {
	return m.sessionID
}

// Connect opens the connection. It is a no-op while connecting or open.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.unlock()
	m.connectLocked()
}

// Send wraps payload in an envelope and transmits it, or queues it until
// the connection opens.
func (m *Manager) Send(msgType string, payload any) error {
	env, err := protocol.NewEnvelope(msgType, payload, m.clock.Now())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.unlock()

	if m.state != StateOpen {
		m.pending = append(m.pending, env)
		m.logger.Debug("queued outbound message", "type", msgType, "pending", len(m.pending))
		return nil
	}

	if err := m.transmitLocked(env); err != nil {
		m.pending = append(m.pending, env)
		m.failLocked(&ConnectionError{Op: "send", Err: err})
	}
	return nil
}

// Disconnect closes the connection with a normal close code, drops queued
// messages, cancels any scheduled reconnect and removes every subscriber
// from the bus.
func (m *Manager) Disconnect(reason string) {
	m.mu.Lock()
	m.setStateLocked(StateClosing)
	m.cancelTimerLocked()
	m.dropConnLocked(CloseNormal, reason)
	if n := len(m.pending); n > 0 {
		m.logger.Debug("dropping queued messages", "count", n)
	}
	m.pending = nil
	m.exhausted = false
	m.setStateLocked(StateClosed)
	m.unlock()

	m.bus.Clear()
	m.logger.Info("disconnected", "reason", reason)
}

// Reconnect resets the attempt counter, disconnects and schedules a fresh
// Connect after the manual reconnect delay.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	m.cancelTimerLocked()
	m.attempts = 0
	m.unlock()

	m.Disconnect("reconnect")

	m.mu.Lock()
	defer m.unlock()
	m.scheduleLocked(m.cfg.ManualReconnectDelay)
	m.logger.Info("manual reconnect scheduled", "delay", m.cfg.ManualReconnectDelay)
}

// SetIdentity sets the identity sent in the subscribe handshake. A nil
// identity disables the handshake.
func (m *Manager) SetIdentity(id *protocol.Identity) {
	m.mu.Lock()
	defer m.unlock()
	if id == nil {
		m.identity = nil
		return
	}
	cp := *id
	m.identity = &cp
}

// SetOnline records the environment connectivity signal. It does not
// affect reconnection.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	defer m.unlock()
	if m.online == online {
		return
	}
	m.online = online
	m.logger.Info("environment connectivity changed", "online", online)
	m.notifyLocked()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the connection health.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Stats returns traffic counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Watch registers fn to receive a status snapshot after every state or
// connectivity change. The returned function removes it.
func (m *Manager) Watch(fn func(Status)) (cancel func()) {
	m.mu.Lock()
	m.watchSeq++
	id := m.watchSeq
	m.watchers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) statusLocked() Status {
	return Status{
		State:              m.state,
		Online:             m.online,
		Attempts:           m.attempts,
		MaxAttempts:        m.cfg.MaxAttempts,
		Pending:            len(m.pending),
		ReconnectScheduled: m.timer != nil,
		RetriesExhausted:   m.exhausted,
		SessionID:          m.sessionID.String(),
	}
}

// unlock releases the mutex and then runs everything deferred while it was
// held.
func (m *Manager) unlock() {
	errs, closes, statuses := m.outErrs, m.outClose, m.outStatuses
	m.outErrs, m.outClose, m.outStatuses = nil, nil, nil

	var watchers []func(Status)
	if len(statuses) > 0 {
		watchers = make([]func(Status), 0, len(m.watchers))
		for _, fn := range m.watchers {
			watchers = append(watchers, fn)
		}
	}
	m.mu.Unlock()

	for _, c := range closes {
		if err := c.conn.Close(c.code, c.reason); err != nil {
			m.logger.Debug("close transport", "error", err)
		}
	}
	for _, err := range errs {
		m.reporter.Report(err)
	}
	for _, s := range statuses {
		for _, fn := range watchers {
			fn(s)
		}
	}
}

func (m *Manager) reportLocked(err error) {
	m.outErrs = append(m.outErrs, err)
}

func (m *Manager) notifyLocked() {
	m.outStatuses = append(m.outStatuses, m.statusLocked())
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.Debug("state change", "from", m.state.String(), "to", s.String())
	m.state = s
	m.notifyLocked()
}

func (m *Manager) connectLocked() {
	if m.state == StateConnecting || m.state == StateOpen {
		return
	}

	m.cancelTimerLocked()
	m.exhausted = false
	m.dropConnLocked(CloseGoingAway, "replaced")
	m.setStateLocked(StateConnecting)
	gen := m.gen

	ctx := context.Background()
	if m.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()
	}

	token, err := m.tokens.Token(ctx)
	if err == nil && token == "" {
		err = ErrEmptyToken
	}
	if err != nil {
		m.failLocked(&ConnectionError{Op: "token", Err: err})
		return
	}

	target, err := m.cfg.Target(token)
	if err != nil {
		m.failLocked(&ConnectionError{Op: "open", Err: err})
		return
	}

	conn, err := m.transport.Open(target, &listener{m: m, gen: gen})
	if err != nil {
		m.failLocked(&ConnectionError{Op: "open", Err: err})
		return
	}
	m.conn = conn
	m.logger.Info("connecting", "host", m.cfg.Host, "attempt", m.attempts)
}

// dropConnLocked abandons the current transport. Callbacks it makes later
// carry an old generation and are ignored.
func (m *Manager) dropConnLocked(code int, reason string) {
	m.gen++
	if m.conn == nil {
		return
	}
	m.outClose = append(m.outClose, closeReq{conn: m.conn, code: code, reason: reason})
	m.conn = nil
}

// failLocked moves to Errored, reports err and runs backoff evaluation.
func (m *Manager) failLocked(err error) {
	m.lastErr = err
	m.dropConnLocked(CloseGoingAway, "error")
	m.setStateLocked(StateErrored)
	m.reportLocked(err)
	m.scheduleReconnectLocked()
}

func (m *Manager) transmitLocked(env protocol.Envelope) error {
	if m.conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := m.conn.Send(data); err != nil {
		return err
	}
	m.stats.Sent++
	return nil
}

// scheduleReconnectLocked is the backoff evaluation shared by errors and
// unclean closes.
func (m *Manager) scheduleReconnectLocked() {
	if m.timer != nil {
		return
	}
	if m.attempts >= m.cfg.MaxAttempts {
		if !m.exhausted {
			m.exhausted = true
			m.logger.Warn("giving up on reconnect", "attempts", m.attempts)
			m.reportLocked(&RetriesExhaustedError{Attempts: m.attempts, Last: m.lastErr})
			m.notifyLocked()
		}
		return
	}

	delay := m.cfg.Backoff().Delay(m.attempts)
	m.attempts++
	m.logger.Info("reconnect scheduled",
		"attempt", m.attempts,
		"max_attempts", m.cfg.MaxAttempts,
		"delay", delay,
	)
	m.scheduleLocked(delay)
}

func (m *Manager) scheduleLocked(delay time.Duration) {
	m.cancelTimerLocked()
	m.timerSeq++
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(delay, func() { m.fire(seq) })
	m.notifyLocked()
}

func (m *Manager) cancelTimerLocked() {
	if m.timer == nil {
		return
	}
	m.timer.Stop()
	m.timer = nil
}

// fire runs a scheduled Connect unless the timer was cancelled or replaced
// after it started firing.
func (m *Manager) fire(seq uint64) {
	m.mu.Lock()
	defer m.unlock()
	if m.timer == nil || m.timerSeq != seq {
		return
	}
	m.timer = nil
	m.connectLocked()
}

func (m *Manager) handleOpen(gen uint64) {
	m.mu.Lock()
	defer m.unlock()
	if gen != m.gen {
		return
	}

	m.attempts = 0
	m.exhausted = false
	m.lastErr = nil
	m.stats.Opens++
	m.setStateLocked(StateOpen)
	m.logger.Info("connected", "host", m.cfg.Host, "pending", len(m.pending))

	queued := m.pending
	m.pending = nil
	for i, env := range queued {
		if err := m.transmitLocked(env); err != nil {
			m.pending = append(m.pending, queued[i:]...)
			m.failLocked(&ConnectionError{Op: "send", Err: err})
			return
		}
	}

	if m.identity == nil {
		return
	}
	env, err := protocol.NewEnvelope(protocol.TypeSubscribe, *m.identity, m.clock.Now())
	if err != nil {
		m.reportLocked(&ConnectionError{Op: "handshake", Err: err})
		return
	}
	if err := m.transmitLocked(env); err != nil {
		m.failLocked(&ConnectionError{Op: "handshake", Err: err})
	}
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.stats.Received++
	env, err := protocol.Parse(data, m.clock.Now())
	if err != nil {
		m.stats.ProtocolErrors++
		m.reportLocked(&ProtocolError{Size: len(data), Err: err})
		m.unlock()
		return
	}
	m.unlock()

	if m.tap != nil {
		m.tap(env)
	}
	m.bus.Publish(env.Type, env)
}

func (m *Manager) handleClose(gen uint64, code int, reason string) {
	m.mu.Lock()
	defer m.unlock()
	if gen != m.gen {
		return
	}

	m.conn = nil
	m.gen++
	m.setStateLocked(StateClosed)
	if code == CloseNormal {
		m.logger.Info("connection closed", "code", code, "reason", reason)
		return
	}
	m.logger.Warn("connection closed unexpectedly", "code", code, "reason", reason)
	m.scheduleReconnectLocked()
}

func (m *Manager) handleError(gen uint64, err error) {
	m.mu.Lock()
	defer m.unlock()
	if gen != m.gen {
		return
	}

	m.lastErr = err
	m.setStateLocked(StateErrored)
	m.reportLocked(&ConnectionError{Op: "transport", Err: err})
	m.scheduleReconnectLocked()
}

// listener binds transport callbacks to one connection generation.
type listener struct {
	m   *Manager
	gen uint64
}

func (l *listener) OnOpen()                         { l.m.handleOpen(l.gen) }
func (l *listener) OnMessage(data []byte)           { l.m.handleMessage(l.gen, data) }
func (l *listener) OnClose(code int, reason string) { l.m.handleClose(l.gen, code, reason) }
func (l *listener) OnError(err error)               { l.m.handleError(l.gen, err) }
