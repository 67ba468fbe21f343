// Package workerpool runs batches of independent tasks on a fixed set of
// long-lived workers, each owning private state (typically a solver
// channel) for its whole lifetime.
package workerpool

import (
	"context"
	stdliberrors "errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// Factory builds the private state of worker number id.
type Factory[S any] func(ctx context.Context, id int) (S, error)

// Release disposes of a worker's state.
type Release[S any] func(state S) error

// Func processes one item with the state of the worker it runs on.
type Func[S, T, R any] func(ctx context.Context, state S, item T) (R, error)

// Option configures a Pool.
type Option func(*options)

type options struct {
	name    string
	logger  logging.Logger
	metrics *prometheus.RepoMetrics
}

// WithName labels the pool in logs and metrics.
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics records task outcomes and the worker count.
func WithMetrics(m *prometheus.RepoMetrics) Option { return func(o *options) { o.metrics = m } }

// Pool is a fixed set of workers.  Map calls on one pool are serialized so
// that a worker's state is never used by two tasks at once.
type Pool[S any] struct {
	opts    options
	states  []S
	release Release[S]

	mu     sync.Mutex
	closed bool
}

// New builds size workers.  If any factory call fails, the workers built so
// far are released and the error is returned.  release may be nil.
func New[S any](ctx context.Context, size int, factory Factory[S], release Release[S], opts ...Option) (*Pool[S], error) {
	if size <= 0 {
		return nil, errors.InvalidParam("worker pool size must be positive").WithDetailf("size=%d", size)
	}
	o := options{name: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrDefault(o.logger).Named("workerpool").With(logging.String("pool", o.name))

	p := &Pool[S]{opts: o, release: release}
	for id := 0; id < size; id++ {
		s, err := factory(ctx, id)
		if err != nil {
			_ = p.releaseAll()
			return nil, errors.Wrap(err, errors.CodeUnknown, "start worker").WithDetailf("pool=%s worker=%d", o.name, id)
		}
		p.states = append(p.states, s)
	}
	o.metrics.SetActiveWorkers(o.name, size)
	o.logger.Debug("worker pool started", logging.Int("workers", size))
	return p, nil
}

// Size returns the number of workers.
func (p *Pool[S]) Size() int { return len(p.states) }

// Close releases every worker.  It is safe to call more than once.
func (p *Pool[S]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.opts.metrics.SetActiveWorkers(p.opts.name, 0)
	return p.releaseAll()
}

func (p *Pool[S]) releaseAll() error {
	if p.release == nil {
		p.states = nil
		return nil
	}
	var errs []error
	for _, s := range p.states {
		if err := p.release(s); err != nil {
			errs = append(errs, err)
		}
	}
	p.states = nil
	return stdliberrors.Join(errs...)
}

// Map runs fn on every item and returns the results in item order.  The
// first failing task cancels the context passed to the others, stops the
// dispatch of new items and is the error returned; no partial results are
// returned.
func Map[S, T, R any](ctx context.Context, p *Pool[S], stage string, items []T, fn Func[S, T, R]) ([]R, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New(errors.CodeUnavailable, "worker pool is closed").WithDetailf("pool=%s", p.opts.name)
	}

	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := range items {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	workers := len(p.states)
	if workers > len(items) {
		workers = len(items)
	}
	for w := 0; w < workers; w++ {
		state := p.states[w]
		g.Go(func() error {
			for i := range jobs {
				start := time.Now()
				r, err := fn(gctx, state, items[i])
				p.opts.metrics.RecordTask(stage, time.Since(start), err)
				if err != nil {
					return err
				}
				results[i] = r
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.opts.logger.Warn("stage failed", logging.Stage(stage), logging.Err(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCanceled, "stage canceled").WithDetailf("stage=%s", stage)
	}
	p.opts.logger.Debug("stage finished", logging.Stage(stage), logging.Int("tasks", len(items)))
	return results, nil
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
