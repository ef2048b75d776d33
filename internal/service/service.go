// Package service ties the realtime pieces of one user session together.
//
// A Service is constructed once and injected into consumers. Init binds it
// to an identity: the bridge attaches to the connection's bus, registered
// synchronizers are configured, and the connection opens. Teardown reverses
// all of it. Init on an active service tears the previous session down
// first.
//
// The connection clears its bus whenever it disconnects, so a manual
// reconnect must go through Service.Reconnect, which restores the bridge and
// synchronizer subscriptions for the running session.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mohsale1/dino-sync/internal/bridge"
	"github.com/mohsale1/dino-sync/internal/events"
	"github.com/mohsale1/dino-sync/internal/protocol"
	"github.com/mohsale1/dino-sync/internal/realtime"
)

// Connection is the part of connection.Manager the service drives.
type Connection interface {
	Bus() *events.Bus[protocol.Envelope]
	Connect()
	Disconnect(reason string)
	Reconnect()
	SetIdentity(id *protocol.Identity)
}

type binding struct {
	name      string
	configure func(ctx context.Context, id protocol.Identity) error
	teardown  func()
}

// Service owns a session's connection, bridge and synchronizers.
type Service struct {
	conn   Connection
	bridge *bridge.Bridge
	logger *slog.Logger

	mu       sync.Mutex
	bindings []binding
	identity protocol.Identity
	ctx      context.Context
	active   bool
}

// New creates an inactive Service.
func New(conn Connection, b *bridge.Bridge, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		conn:   conn,
		bridge: b,
		logger: logger.With("component", "service"),
	}
}

// Bridge returns the domain event bridge.
func (s *Service) Bridge() *bridge.Bridge {
	return s.bridge
}

// Register creates a synchronizer fed by the service's connection. params
// builds its activation from the session identity on every Init.
func Register[T any](s *Service, name string, params func(id protocol.Identity) realtime.Params[T], opts ...realtime.Option) *realtime.Synchronizer[T] {
	opts = append([]realtime.Option{realtime.WithName(name)}, opts...)
	syncer := realtime.New[T](s.conn.Bus(), opts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings = append(s.bindings, binding{
		name: name,
		configure: func(ctx context.Context, id protocol.Identity) error {
			return syncer.Configure(ctx, params(id))
		},
		teardown: syncer.Teardown,
	})
	if s.active {
		if err := syncer.Configure(s.ctx, params(s.identity)); err != nil {
			s.logger.Error("configure late synchronizer", "name", name, "error", err)
		}
	}
	return syncer
}

// Init starts a session for id. A zero identity connects without the
// subscribe handshake.
func (s *Service) Init(ctx context.Context, id protocol.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.teardownLocked("reinit")
	}

	s.bridge.Attach(s.conn.Bus())
	if id.IsZero() {
		s.conn.SetIdentity(nil)
	} else {
		s.conn.SetIdentity(&id)
	}

	for _, b := range s.bindings {
		if err := b.configure(ctx, id); err != nil {
			s.teardownLocked("init failed")
			return fmt.Errorf("configure %s: %w", b.name, err)
		}
	}

	s.identity = id
	s.ctx = ctx
	s.active = true
	s.conn.Connect()

	s.logger.Info("session started",
		"user", id.UserID,
		"venue", id.VenueID,
		"synchronizers", len(s.bindings),
	)
	return nil
}

// Reconnect drops the connection and schedules a fresh one, then
// resubscribes the bridge and every synchronizer on the cleared bus. Each
// synchronizer refetches. Inactive services only forward the reconnect.
func (s *Service) Reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.Reconnect()
	if !s.active {
		return
	}

	s.bridge.Attach(s.conn.Bus())
	for _, b := range s.bindings {
		if err := b.configure(s.ctx, s.identity); err != nil {
			s.logger.Error("reconfigure after reconnect", "name", b.name, "error", err)
		}
	}
	s.logger.Info("session resubscribed", "synchronizers", len(s.bindings))
}

// Teardown ends the session. It is a no-op when inactive.
func (s *Service) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.teardownLocked("teardown")
	s.logger.Info("session ended")
}

// Active reports whether a session is running.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Identity returns the identity of the running session.
func (s *Service) Identity() (protocol.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.active
}

func (s *Service) teardownLocked(reason string) {
	s.bridge.Detach()
	for _, b := range s.bindings {
		b.teardown()
	}
	s.conn.SetIdentity(nil)
	s.conn.Disconnect(reason)
	s.identity = protocol.Identity{}
	s.ctx = nil
	s.active = false
}
