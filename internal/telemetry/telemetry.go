// internal/telemetry/telemetry.go
// Package telemetry batches SDK events and ships them through the API's
// telemetry proxy endpoint. Events are buffered in memory and flushed either
// when a batch fills or on a timer; when the queue is full the oldest events
// are dropped so the agent loop never blocks on telemetry.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantumagi/agi-sdk-go/internal/api"
	"github.com/quantumagi/agi-sdk-go/internal/config"
)

// Poster ships a batch of events. *api.Client satisfies it.
type Poster interface {
	PostTelemetry(ctx context.Context, events []api.TelemetryEvent) error
}

// Emitter is a batching telemetry sink. The zero value is not usable; use
// NewEmitter.
type Emitter struct {
	poster        Poster
	logger        *zap.Logger
	batchSize     int
	flushInterval time.Duration
	queueLimit    int

	mu      sync.Mutex
	queue   []api.TelemetryEvent
	dropped int

	flushCh chan struct{}
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewEmitter starts the background flusher and returns the emitter. Close
// must be called to drain the queue and stop the goroutine.
func NewEmitter(cfg config.TelemetryConfig, poster Poster, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 10
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	limit := cfg.QueueLimit
	if limit <= 0 {
		limit = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Emitter{
		poster:        poster,
		logger:        logger,
		batchSize:     batch,
		flushInterval: interval,
		queueLimit:    limit,
		flushCh:       make(chan struct{}, 1),
		stop:          cancel,
	}
	e.wg.Add(1)
	go e.run(ctx)
	return e
}

// CaptureEvent enqueues an informational event.
func (e *Emitter) CaptureEvent(name string, tags map[string]string, extras map[string]interface{}) {
	e.enqueue(api.TelemetryEvent{
		ID:        uuid.NewString(),
		Name:      name,
		Level:     "info",
		Timestamp: time.Now().UTC(),
		Tags:      tags,
		Extras:    extras,
	})
}

// CaptureError enqueues an error event.
func (e *Emitter) CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	e.enqueue(api.TelemetryEvent{
		ID:        uuid.NewString(),
		Name:      "error",
		Level:     "error",
		Timestamp: time.Now().UTC(),
		Tags:      tags,
		Extras:    map[string]interface{}{"message": err.Error()},
	})
}

func (e *Emitter) enqueue(ev api.TelemetryEvent) {
	e.mu.Lock()
	if len(e.queue) >= e.queueLimit {
		// Drop the oldest to keep recent events.
		over := len(e.queue) - e.queueLimit + 1
		e.queue = e.queue[over:]
		e.dropped += over
	}
	e.queue = append(e.queue, ev)
	full := len(e.queue) >= e.batchSize
	e.mu.Unlock()

	if full {
		select {
		case e.flushCh <- struct{}{}:
		default:
		}
	}
}

func (e *Emitter) run(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final drain with a fresh context so Close still ships what
			// is buffered.
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.flush(drainCtx)
			cancel()
			return
		case <-ticker.C:
			e.flush(ctx)
		case <-e.flushCh:
			e.flush(ctx)
		}
	}
}

func (e *Emitter) flush(ctx context.Context) {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			dropped := e.dropped
			e.dropped = 0
			e.mu.Unlock()
			if dropped > 0 {
				e.logger.Warn("Telemetry queue overflow, events dropped", zap.Int("count", dropped))
			}
			return
		}
		n := len(e.queue)
		if n > e.batchSize {
			n = e.batchSize
		}
		batch := make([]api.TelemetryEvent, n)
		copy(batch, e.queue[:n])
		e.queue = e.queue[n:]
		e.mu.Unlock()

		if err := e.poster.PostTelemetry(ctx, batch); err != nil {
			e.logger.Debug("Telemetry batch post failed", zap.Error(err), zap.Int("events", len(batch)))
			return
		}
	}
}

// Flush forces an immediate flush of all buffered events.
func (e *Emitter) Flush(ctx context.Context) {
	e.flush(ctx)
}

// Close drains the queue and stops the background flusher. Safe to call more
// than once.
func (e *Emitter) Close() {
	e.stop()
	e.wg.Wait()
}
