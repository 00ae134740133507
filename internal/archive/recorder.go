package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finsight/realtime/internal/mux"
)

// Recorder subscribes to a set of message types and persists every received
// frame to the archive table in batches.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	// Frame source
	mux     mux.Mux
	handles []mux.UnsubscribeFunc

	// Ring between subscription handlers and the flush loop
	input *buffer[frameRow]

	// Database
	db *pgxpool.Pool

	// Batch insert statement, built once from cfg.Table
	insertSQL string

	// insert performs one batch write; tests substitute it to observe
	// flush behavior without a live database.
	insert func(ctx context.Context, rows []frameRow) (conflicts int, err error)

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metricsMu sync.Mutex
	metrics   Metrics
}

// NewRecorder creates a new Recorder.
func NewRecorder(cfg Config, m mux.Mux, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		cfg:    cfg,
		mux:    m,
		db:     db,
		logger: logger,
		input:  newBuffer[frameRow](cfg.BufferSize),
		insertSQL: fmt.Sprintf(`
			INSERT INTO %s (id, received_at, msg_type, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, cfg.Table),
	}
	r.insert = r.batchInsert
	return r
}

// Start subscribes to the configured message types and begins flushing.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	for _, msgType := range r.cfg.MessageTypes {
		r.handles = append(r.handles, r.mux.Subscribe(msgType, r.handleFrame))
	}

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("recorder started",
		"types", r.cfg.MessageTypes,
		"table", r.cfg.Table,
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop releases the subscriptions, drains the ring, and flushes whatever
// remains.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping recorder")

	// Release subscriptions first so no new frames land in the ring.
	for _, release := range r.handles {
		release()
	}
	r.handles = nil

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out")
	}

	// Final flush of everything still buffered.
	for {
		rows := r.input.drain(r.cfg.BatchSize)
		if len(rows) == 0 {
			break
		}
		r.flush(context.Background(), rows)
	}

	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	m := r.metrics
	return m
}

// handleFrame runs on the dispatch goroutine; it must not block, so the frame
// goes into the ring and the flush loop does the database work.
func (r *Recorder) handleFrame(f mux.Frame) {
	row := transform(f)
	if !r.input.push(row) {
		r.metricsMu.Lock()
		r.metrics.Dropped++
		r.metricsMu.Unlock()
		r.logger.Warn("archive ring full, frame dropped", "type", f.Type)
	}
}

// transform converts a frame to its database row.
func transform(f mux.Frame) frameRow {
	return frameRow{
		ID:         uuid.New(),
		ReceivedAt: f.ReceivedAt.UnixMicro(),
		MsgType:    f.Type,
		Payload:    []byte(f.Data),
	}
}

// flushLoop drains the ring on a timer, or early when a full batch is ready.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.flush(r.ctx, r.input.drain(r.cfg.BatchSize))
		default:
			if r.input.len() >= r.cfg.BatchSize {
				r.flush(r.ctx, r.input.drain(r.cfg.BatchSize))
				continue
			}
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

// flush writes one batch to the database.
func (r *Recorder) flush(ctx context.Context, rows []frameRow) {
	if len(rows) == 0 {
		return
	}

	start := time.Now()

	conflicts, err := r.insert(ctx, rows)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(rows))
		r.metricsMu.Lock()
		r.metrics.Errors++
		r.metricsMu.Unlock()
		return
	}

	r.metricsMu.Lock()
	r.metrics.Inserts += int64(len(rows) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.metricsMu.Unlock()

	r.logger.Debug("flushed frames",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *Recorder) batchInsert(ctx context.Context, rows []frameRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(r.insertSQL, row.ID, row.ReceivedAt, row.MsgType, row.Payload)
	}

	results := r.db.SendBatch(ctx, batch)
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
