package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mohsale1/dino-sync/internal/clock"
	"github.com/mohsale1/dino-sync/internal/events"
	"github.com/mohsale1/dino-sync/internal/protocol"
	"github.com/mohsale1/dino-sync/internal/report"
)

// ErrNoFetch is returned by Configure when Params.Fetch is nil.
var ErrNoFetch = errors.New("realtime: fetch function is required")

// FetchFunc loads the current value of a resource.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Params configures one activation of a Synchronizer.
type Params[T any] struct {
	Fetch    FetchFunc[T]
	Triggers []string      // event types that cause a refetch
	Interval time.Duration // polling interval, 0 disables polling
}

// State is the observable state of a Synchronizer.
type State[T any] struct {
	Data        T
	HasData     bool
	Loading     bool
	Err         error
	LastUpdated time.Time
}

// FetchError wraps a failed fetch.
type FetchError struct {
	Name string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("fetch %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("fetch: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Kind classifies the error for reporting.
func (e *FetchError) Kind() string { return "fetch" }

// Option configures a Synchronizer.
type Option func(*options)

type options struct {
	name     string
	clock    clock.Clock
	logger   *slog.Logger
	reporter report.Reporter
}

// WithName labels the synchronizer in logs and errors.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithClock sets the clock used for polling and LastUpdated.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithReporter sets where fetch failures are reported.
func WithReporter(r report.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// Synchronizer keeps one resource fresh from polling and realtime triggers.
type Synchronizer[T any] struct {
	name     string
	source   events.Subscriber[protocol.Envelope]
	clock    clock.Clock
	logger   *slog.Logger
	reporter report.Reporter

	wg sync.WaitGroup

	mu       sync.Mutex
	state    State[T]
	gen      uint64 // activation generation
	active   bool
	params   Params[T]
	ctx      context.Context
	timer    clock.Timer
	subs     []*events.Subscription[protocol.Envelope]
	inflight int

	watchers map[int]func(State[T])
	watchSeq int

	// Deferred until unlock
	outStates []State[T]
	outErrs   []error
}

// New creates an inactive Synchronizer fed by source.
func New[T any](source events.Subscriber[protocol.Envelope], opts ...Option) *Synchronizer[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "realtime", "resource", o.name)
	if o.reporter == nil {
		o.reporter = report.Log(o.logger)
	}

	return &Synchronizer[T]{
		name:     o.name,
		source:   source,
		clock:    o.clock,
		logger:   o.logger,
		reporter: o.reporter,
		watchers: make(map[int]func(State[T])),
	}
}

// Name returns the synchronizer label.
func (s *Synchronizer[T]) Name() string {
	return s.name
}

// Configure replaces any previous activation with p: it fetches
// immediately, starts polling and subscribes to p.Triggers.
func (s *Synchronizer[T]) Configure(ctx context.Context, p Params[T]) error {
	if p.Fetch == nil {
		return ErrNoFetch
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.unlock()

	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.active = true
	s.params = p
	s.ctx = ctx

	for _, eventType := range p.Triggers {
		s.subs = append(s.subs, s.source.Subscribe(eventType, func(protocol.Envelope) {
			s.trigger(gen, eventType)
		}))
	}
	if p.Interval > 0 {
		s.scheduleLocked(gen)
	}

	s.logger.Debug("synchronizer configured",
		"interval", p.Interval,
		"triggers", p.Triggers,
	)
	s.startFetchLocked(gen)
	return nil
}

// Refresh fetches immediately. The polling schedule is not reset.
func (s *Synchronizer[T]) Refresh() {
	s.mu.Lock()
	defer s.unlock()
	if !s.active {
		return
	}
	s.startFetchLocked(s.gen)
}

// Teardown stops polling and removes trigger subscriptions. Fetches still in
// flight complete but their results are discarded.
func (s *Synchronizer[T]) Teardown() {
	s.mu.Lock()
	defer s.unlock()
	if !s.active {
		return
	}
	s.teardownLocked()
	s.gen++
	s.notifyLocked()
	s.logger.Debug("synchronizer torn down")
}

// Active reports whether the synchronizer is configured.
func (s *Synchronizer[T]) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// State returns a snapshot of the current state.
func (s *Synchronizer[T]) State() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnChange registers fn to receive every state change. The returned
// function removes it.
func (s *Synchronizer[T]) OnChange(fn func(State[T])) (cancel func()) {
	s.mu.Lock()
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// Wait blocks until every started fetch has returned.
func (s *Synchronizer[T]) Wait() {
	s.wg.Wait()
}

func (s *Synchronizer[T]) teardownLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.active = false
	s.inflight = 0
	s.state.Loading = false
}

func (s *Synchronizer[T]) scheduleLocked(gen uint64) {
	s.timer = s.clock.AfterFunc(s.params.Interval, func() { s.tick(gen) })
}

func (s *Synchronizer[T]) tick(gen uint64) {
	s.mu.Lock()
	defer s.unlock()
	if !s.active || gen != s.gen {
		return
	}
	s.scheduleLocked(gen)
	s.startFetchLocked(gen)
}

func (s *Synchronizer[T]) trigger(gen uint64, eventType string) {
	s.mu.Lock()
	defer s.unlock()
	if !s.active || gen != s.gen {
		return
	}
	s.logger.Debug("refetch triggered", "event", eventType)
	s.startFetchLocked(gen)
}

func (s *Synchronizer[T]) startFetchLocked(gen uint64) {
	s.inflight++
	if !s.state.Loading {
		s.state.Loading = true
		s.notifyLocked()
	}

	fetch, ctx := s.params.Fetch, s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		data, err := s.run(ctx, fetch)
		s.complete(gen, data, err)
	}()
}

// run calls fetch, converting a panic into an error.
func (s *Synchronizer[T]) run(ctx context.Context, fetch FetchFunc[T]) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fetch(ctx)
}

func (s *Synchronizer[T]) complete(gen uint64, data T, err error) {
	s.mu.Lock()
	defer s.unlock()
	if !s.active || gen != s.gen {
		return
	}

	s.inflight--
	if s.inflight <= 0 {
		s.inflight = 0
		s.state.Loading = false
	}

	if err != nil {
		ferr := &FetchError{Name: s.name, Err: err}
		s.state.Err = ferr
		s.outErrs = append(s.outErrs, ferr)
	} else {
		s.state.Data = data
		s.state.HasData = true
		s.state.Err = nil
		s.state.LastUpdated = s.clock.Now()
	}
	s.notifyLocked()
}

func (s *Synchronizer[T]) notifyLocked() {
	if len(s.watchers) == 0 {
		return
	}
	s.outStates = append(s.outStates, s.state)
}

func (s *Synchronizer[T]) unlock() {
	states, errs := s.outStates, s.outErrs
	s.outStates, s.outErrs = nil, nil

	var watchers []func(State[T])
	if len(states) > 0 {
		watchers = make([]func(State[T]), 0, len(s.watchers))
		for _, fn := range s.watchers {
			watchers = append(watchers, fn)
		}
	}
	s.mu.Unlock()

	for _, err := range errs {
		s.reporter.Report(err)
	}
	for _, st := range states {
		for _, fn := range watchers {
			fn(st)
		}
	}
}
