package projection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/plaenen/iamcore/pkg/database"
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
)

// Status is one projection's view for operators.
type Status struct {
	Name         string          `json:"name"`
	Position     domain.Position `json:"position"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	FailureCount uint32          `json:"failureCount"`
	LastError    string          `json:"lastError,omitempty"`
	Parked       bool            `json:"parked"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithBatchSize bounds the events pulled per transaction.
func WithBatchSize(n uint32) Option {
	return func(r *Registry) { r.cfg.batchSize = n }
}

// WithPollInterval sets how often workers look for new events regardless of
// subscription wake-ups.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) { r.cfg.pollInterval = d }
}

// WithLeaseTTL sets how long a worker's claim on a projection lasts.
func WithLeaseTTL(d time.Duration) Option {
	return func(r *Registry) { r.cfg.leaseTTL = d }
}

// WithMaxFailureCount sets how many consecutive batch failures park a
// projection.
func WithMaxFailureCount(n uint32) Option {
	return func(r *Registry) { r.cfg.maxFailureCount = n }
}

// WithMetrics enables batch measurements.
func WithMetrics(m Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// Registry owns the projection workers.
type Registry struct {
	es          *eventstore.Eventstore
	db          *database.DB
	checkpoints *CheckpointStore
	logger      *slog.Logger
	metrics     Metrics
	cfg         workerConfig

	mu      sync.Mutex
	workers map[string]*worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRegistry creates the registry and its checkpoint store on db.
func NewRegistry(es *eventstore.Eventstore, db *database.DB, logger *slog.Logger, opts ...Option) (*Registry, error) {
	checkpoints, err := NewCheckpointStore(db)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		es:          es,
		db:          db,
		checkpoints: checkpoints,
		logger:      logger,
		cfg:         defaultWorkerConfig(),
		workers:     make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register adds a handler and creates its tables and checkpoint row.
// Must be called before Start.
func (r *Registry) Register(ctx context.Context, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workers[handler.Name()]; ok {
		return domain.NewInvalidArgument(nil, "PROJ-rgDup", "projection already registered")
	}

	w := newWorker(handler, r.es, r.db, r.checkpoints, r.logger, r.metrics, r.cfg)
	if err := w.init(ctx); err != nil {
		return err
	}
	r.workers[handler.Name()] = w
	return nil
}

// Start launches one goroutine per registered projection.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, r.cancel = context.WithCancel(ctx)
	for _, w := range r.workers {
		r.wg.Add(1)
		go func(w *worker) {
			defer r.wg.Done()
			w.run(ctx)
		}(w)
	}
}

// Stop cancels all workers and waits for them to finish their batch.
func (r *Registry) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Trigger wakes a projection immediately instead of waiting for the next
// poll tick.
func (r *Registry) Trigger(name string) error {
	w, err := r.worker(name)
	if err != nil {
		return err
	}
	w.wake()
	return nil
}

// CatchUp synchronously drains a projection to the current tip of the log.
// Used by tests and by read paths that need read-your-writes.
func (r *Registry) CatchUp(ctx context.Context, name string) error {
	w, err := r.worker(name)
	if err != nil {
		return err
	}
	tip, err := r.es.LatestPosition(ctx, "")
	if err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cp, err := r.checkpoints.Load(ctx, name)
		if err != nil {
			return err
		}
		if !tip.After(cp.Position) {
			return nil
		}
		n, err := w.processBatch(ctx)
		if err != nil {
			w.fail(ctx, err)
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// CatchUpAll drains every registered projection to the tip.
func (r *Registry) CatchUpAll(ctx context.Context) error {
	r.mu.Lock()
	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		if err := r.CatchUp(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Status reports all projections, ordered is up to the caller.
func (r *Registry) Status(ctx context.Context) ([]Status, error) {
	r.mu.Lock()
	workers := make([]*worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w)
	}
	r.mu.Unlock()

	statuses := make([]Status, 0, len(workers))
	for _, w := range workers {
		cp, err := r.checkpoints.Load(ctx, w.handler.Name())
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, Status{
			Name:         cp.Name,
			Position:     cp.Position,
			UpdatedAt:    cp.UpdatedAt,
			FailureCount: cp.FailureCount,
			LastError:    cp.LastError,
			Parked:       w.parked.Load(),
		})
	}
	return statuses, nil
}

// Skip moves a parked projection past a poison position and resumes it.
func (r *Registry) Skip(ctx context.Context, name string, past domain.Position) error {
	w, err := r.worker(name)
	if err != nil {
		return err
	}
	if err := r.checkpoints.Skip(ctx, name, past); err != nil {
		return err
	}
	w.unpark()
	w.wake()
	return nil
}

func (r *Registry) worker(name string) (*worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[name]
	if !ok {
		return nil, domain.NewNotFound(nil, "PROJ-rgNf", "projection not registered")
	}
	return w, nil
}
