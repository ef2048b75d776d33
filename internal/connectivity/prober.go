// Package connectivity derives the environment online/offline signal from
// periodic health checks against the venue API.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Checker performs one health check.
type Checker interface {
	Health(ctx context.Context) error
}

// Sink receives connectivity changes.
type Sink interface {
	SetOnline(online bool)
}

// Config holds prober configuration.
type Config struct {
	Interval         time.Duration // Probe interval (default: 15s)
	Timeout          time.Duration // Per-probe timeout (default: 5s)
	FailureThreshold int           // Consecutive failures before reporting offline (default: 2)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         15 * time.Second,
		Timeout:          5 * time.Second,
		FailureThreshold: 2,
	}
}

// Prober periodically checks API health and forwards the result to a Sink.
type Prober struct {
	cfg     Config
	checker Checker
	sink    Sink
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	online   bool
	failures int
}

// New creates a new Prober. The environment is assumed online until the
// failure threshold is reached. A non-positive interval gets the default.
func New(cfg Config, checker Checker, sink Sink, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	return &Prober{
		cfg:     cfg,
		checker: checker,
		sink:    sink,
		logger:  logger.With("component", "connectivity"),
		online:  true,
	}
}

// Start begins the probe loop.
func (p *Prober) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("connectivity prober started",
		"interval", p.cfg.Interval,
		"threshold", p.cfg.FailureThreshold,
	)

	return nil
}

// Stop gracefully shuts down the prober.
func (p *Prober) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("connectivity prober stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Online returns the last reported connectivity.
func (p *Prober) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *Prober) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Probe immediately on start.
	p.probe(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probe(p.ctx)
		}
	}
}

// probe runs one health check and reports transitions.
func (p *Prober) probe(ctx context.Context) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	err := p.checker.Health(ctx)
	if ctx.Err() != nil && p.ctx.Err() != nil {
		// Shutting down, not a connectivity signal.
		return
	}

	p.mu.Lock()
	was := p.online
	if err != nil {
		p.failures++
		if p.failures >= p.cfg.FailureThreshold {
			p.online = false
		}
		p.logger.Debug("health check failed", "failures", p.failures, "error", err)
	} else {
		p.failures = 0
		p.online = true
	}
	now := p.online
	p.mu.Unlock()

	if now != was {
		p.logger.Info("connectivity changed", "online", now)
		p.sink.SetOnline(now)
	}
}
