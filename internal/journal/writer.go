package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/mohsale1/dino-sync/internal/clock"
	"github.com/mohsale1/dino-sync/internal/protocol"
)

// Batcher sends a queued batch. *pgxpool.Pool satisfies it.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer settings.
type Config struct {
	ClientID      string
	SessionID     string
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int // max envelopes held before the oldest is dropped
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     200,
		FlushInterval: 1 * time.Second,
		BufferSize:    5000,
	}
}

// Metrics counts writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

type row struct {
	ID         uuid.UUID
	Type       string
	Payload    []byte
	SentAt     time.Time
	ReceivedAt time.Time
}

const insertEnvelope = `
	INSERT INTO realtime_envelopes (id, client_id, session_id, type, payload, sent_at, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
`

// Writer batches envelopes into the realtime_envelopes table.
type Writer struct {
	cfg    Config
	db     Batcher
	clock  clock.Clock
	logger *slog.Logger

	input *Buffer[row]

	batch   []row
	batchMu sync.Mutex
	metrics Metrics

	ctx      context.Context
	cancel   context.CancelFunc
	writeCtx context.Context // outlives ctx so a shutdown still drains
	group    *errgroup.Group
}

// NewWriter creates a new Writer. A nil clock uses the wall clock.
func NewWriter(cfg Config, db Batcher, clk clock.Clock, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.BufferSize < cfg.BatchSize {
		cfg.BufferSize = cfg.BatchSize
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		clock:  clk,
		logger: logger.With("component", "journal"),
		input:  NewBuffer[row](cfg.BatchSize, cfg.BufferSize),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// Record queues env for writing. It never blocks and is safe to use as
// the connection manager's tap.
func (w *Writer) Record(env protocol.Envelope) {
	w.input.Send(row{
		ID:         uuid.New(),
		Type:       env.Type,
		Payload:    env.Payload,
		SentAt:     env.Timestamp,
		ReceivedAt: w.clock.Now(),
	})
}

// Start begins consuming envelopes and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.writeCtx = context.WithoutCancel(ctx)
	w.group = new(errgroup.Group)

	w.group.Go(w.consumeLoop)
	w.group.Go(w.flushLoop)

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop drains what is buffered, flushes it, and shuts the writer down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		if w.group != nil {
			w.group.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		return ctx.Err()
	}

	// Final flush of anything left after the loops exited.
	w.batchMu.Lock()
	w.batch = append(w.batch, w.input.DrainTo(0)...)
	w.batchMu.Unlock()
	w.flush(ctx)

	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	m := w.metrics
	w.batchMu.Unlock()
	m.Dropped = w.input.Stats().TotalDropped
	return m
}

// consumeLoop moves envelopes from the buffer into the current batch.
func (w *Writer) consumeLoop() error {
	for {
		r, ok := w.input.Receive()
		if !ok {
			return nil
		}

		w.batchMu.Lock()
		w.batch = append(w.batch, r)
		shouldFlush := len(w.batch) >= w.cfg.BatchSize
		w.batchMu.Unlock()

		if shouldFlush {
			w.flush(w.writeCtx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() error {
	if w.cfg.FlushInterval <= 0 {
		<-w.ctx.Done()
		return nil
	}
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return nil
		case <-ticker.C:
			w.flush(w.writeCtx)
		}
	}
}

// flush writes the current batch. Failed batches are logged and counted,
// not retried.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed envelopes",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		var payload any
		if len(r.Payload) > 0 {
			payload = string(r.Payload)
		}
		batch.Queue(insertEnvelope,
			r.ID, w.cfg.ClientID, w.cfg.SessionID, r.Type, payload, r.SentAt, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
