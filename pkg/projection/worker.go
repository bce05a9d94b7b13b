package projection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/plaenen/iamcore/pkg/database"
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
)

// Metrics receives per-batch measurements. Implemented by the observability
// package; nil disables recording.
type Metrics interface {
	RecordBatch(ctx context.Context, projection string, events int, lag time.Duration)
}

// workerConfig bounds one projection worker.
type workerConfig struct {
	batchSize       uint32
	pollInterval    time.Duration
	leaseTTL        time.Duration
	maxFailureCount uint32
}

func defaultWorkerConfig() workerConfig {
	return workerConfig{
		batchSize:       200,
		pollInterval:    5 * time.Second,
		leaseTTL:        30 * time.Second,
		maxFailureCount: 5,
	}
}

// worker drives one projection. The subscription is only a wake-up; the
// poll over EventsAfterPosition is the source of truth, so events committed
// while the worker was down are never missed.
type worker struct {
	handler     Handler
	es          *eventstore.Eventstore
	db          *database.DB
	checkpoints *CheckpointStore
	owner       string
	logger      *slog.Logger
	metrics     Metrics
	cfg         workerConfig

	trigger chan struct{}
	parked  atomic.Bool
}

func newWorker(handler Handler, es *eventstore.Eventstore, db *database.DB, checkpoints *CheckpointStore, logger *slog.Logger, metrics Metrics, cfg workerConfig) *worker {
	return &worker{
		handler:     handler,
		es:          es,
		db:          db,
		checkpoints: checkpoints,
		owner:       ulid.Make().String(),
		logger:      logger.With("projection", handler.Name()),
		metrics:     metrics,
		cfg:         cfg,
		trigger:     make(chan struct{}, 1),
	}
}

// init creates the handler's tables and registers the checkpoint row.
func (w *worker) init(ctx context.Context) error {
	for _, stmt := range w.handler.Schema() {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return domain.NewUnavailable(err, "PROJ-wkSch", "unable to create projection schema")
		}
	}
	return w.checkpoints.Register(ctx, w.handler.Name())
}

// run is the worker loop. It drains on start, then on every poll tick and
// on every subscription wake-up, until ctx is done.
func (w *worker) run(ctx context.Context) {
	sub := w.es.Subscribe(eventstore.SubscriptionFilter{
		AggregateTypes: w.handler.AggregateTypes(),
	})
	defer sub.Unsubscribe()

	ticker := time.NewTicker(w.cfg.pollInterval)
	defer ticker.Stop()

	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.trigger:
		case _, ok := <-sub.Events:
			if !ok {
				return
			}
		}
		w.drain(ctx)
	}
}

// wake nudges the worker without blocking.
func (w *worker) wake() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// drain processes batches until the projection reaches the tip of the log,
// loses the lease, fails, or ctx is done.
func (w *worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil || w.parked.Load() {
			return
		}
		n, err := w.processBatch(ctx)
		if err != nil {
			w.fail(ctx, err)
			return
		}
		if n < int(w.cfg.batchSize) {
			return
		}
	}
}

// processBatch applies one batch of events and the checkpoint update in a
// single transaction. Returns the number of events read.
func (w *worker) processBatch(ctx context.Context) (int, error) {
	ok, err := w.checkpoints.AcquireLease(ctx, w.handler.Name(), w.owner, w.cfg.leaseTTL)
	if err != nil {
		return 0, err
	}
	if !ok {
		// another worker is on it
		return 0, nil
	}

	cp, err := w.checkpoints.Load(ctx, w.handler.Name())
	if err != nil {
		return 0, err
	}

	events, err := w.es.EventsAfterPosition(ctx, cp.Position, w.handler.AggregateTypes(), nil, w.cfg.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	// Reduce first: a reducer error is a poison event. The good prefix is
	// still committed so the checkpoint parks exactly at the poison position
	// and an operator skip loses nothing.
	batch := make([][]Statement, 0, len(events))
	var reduceErr error
	for _, event := range events {
		statements, err := w.handler.Reduce(event)
		if err != nil {
			reduceErr = err
			break
		}
		batch = append(batch, statements)
	}

	if len(batch) > 0 {
		if err := w.applyBatch(ctx, events[:len(batch)], batch); err != nil {
			return 0, err
		}
	}
	if reduceErr != nil {
		return 0, reduceErr
	}
	return len(events), nil
}

// applyBatch executes the statements of the reduced events and the checkpoint
// advance in one transaction.
func (w *worker) applyBatch(ctx context.Context, events []*domain.Event, batch [][]Statement) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewUnavailable(err, "PROJ-wkTx", "unable to begin projection transaction")
	}
	defer tx.Rollback()

	for _, statements := range batch {
		for _, statement := range statements {
			if err := statement.exec(ctx, tx, w.db.Rebind); err != nil {
				return err
			}
		}
	}

	last := events[len(events)-1]
	if err := w.checkpoints.SaveInTx(ctx, tx, w.handler.Name(), last.Position); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.NewUnavailable(err, "PROJ-wkCm", "unable to commit projection batch")
	}

	if w.metrics != nil {
		w.metrics.RecordBatch(ctx, w.handler.Name(), len(events), time.Since(last.CreatedAt))
	}
	return nil
}

// fail records the failure and parks the worker once the failure budget is
// used up. A parked projection stops consuming until an operator skips the
// poison position.
func (w *worker) fail(ctx context.Context, cause error) {
	count, recErr := w.checkpoints.RecordFailure(ctx, w.handler.Name(), cause)
	if recErr != nil {
		w.logger.Error("recording projection failure failed", "cause", cause, "error", recErr)
		return
	}
	if count >= w.cfg.maxFailureCount {
		w.parked.Store(true)
		w.logger.Error("projection parked after repeated failures",
			"failures", count, "error", cause)
		return
	}
	w.logger.Warn("projection batch failed, will retry", "failures", count, "error", cause)
}

// unpark clears the parked flag, used after an operator skip.
func (w *worker) unpark() {
	w.parked.Store(false)
}
