package worker

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"reportsink/internal/logger"
	"reportsink/internal/metrics"
	"reportsink/internal/models"
	"reportsink/internal/queue"
)

// Persister is the single-writer persistence path the worker feeds.
type Persister interface {
	Insert(env *models.Envelope) error
}

// Worker is the one consumer of the ingestion queue. It drains envelopes
// sequentially and persists each as one atomic unit, honouring the store's
// single-writer constraint. Exactly one Worker must run per queue.
type Worker struct {
	store   Persister
	queue   *queue.Queue
	backoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker configuration
type Config struct {
	Store   Persister
	Queue   *queue.Queue
	Backoff time.Duration
}

// New creates a worker.
func New(cfg Config) *Worker {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		store:   cfg.Store,
		queue:   cfg.Queue,
		backoff: cfg.Backoff,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start begins draining the queue in the background.
func (w *Worker) Start() {
	log := logger.WithComponent("worker")
	log.Info().Dur("backoff", w.backoff).Msg("starting ingestion worker")
	go w.run()
}

// Done is closed once the worker loop has exited, either by cancellation or
// because the queue was closed and fully drained.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Stop cancels the loop and waits for it to exit. Cancellation is observed
// only at loop boundaries; an in-flight persist always completes or fails
// before the loop exits.
func (w *Worker) Stop() {
	w.cancel()
	<-w.done
}

func (w *Worker) run() {
	log := logger.WithComponent("worker")

	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	log.Info().Msg("worker started")
	defer log.Info().Msg("worker stopped")

	for {
		item, err := w.queue.Dequeue(w.ctx)
		if err != nil {
			// Cancelled, or the queue is closed and drained. Either way the
			// loop is done.
			return
		}

		start := time.Now()
		persistErr := w.store.Insert(item.Envelope)
		metrics.PersistDuration.Observe(time.Since(start).Seconds())

		if persistErr != nil {
			// At-most-once after dequeue: the envelope is not re-enqueued.
			// Its producer was already told "accepted", so the failure is
			// logged here and the loop resumes after a fixed pause.
			w.failed.Add(1)
			metrics.PersistFailuresTotal.Inc()
			log.Error().
				Err(persistErr).
				Str("envelope_id", item.Envelope.ID).
				Str("service", item.Envelope.Service).
				Int("item_count", item.Envelope.ItemCount).
				Msg("failed to persist envelope")

			select {
			case <-w.ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}

		w.processed.Add(1)
		metrics.PersistedEnvelopesTotal.Inc()
		log.Debug().
			Str("envelope_id", item.Envelope.ID).
			Int("item_count", item.Envelope.ItemCount).
			Dur("queued", start.Sub(item.EnqueuedAt)).
			Msg("envelope persisted")
	}
}

// Stats returns worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
	}
}

// Stats holds worker metrics
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}
