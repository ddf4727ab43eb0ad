package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cosolvent/cosolvent/domain/fault"
	"github.com/cosolvent/cosolvent/domain/queue"
	"github.com/cosolvent/cosolvent/internal/config"
	"github.com/cosolvent/cosolvent/internal/log"
)

// ErrNoHandler indicates no handler is registered for the queue.
var ErrNoHandler = errors.New("no handler registered")

// Handler processes deliveries from one queue.
type Handler interface {
	Handle(ctx context.Context, d queue.Delivery) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d queue.Delivery) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, d queue.Delivery) error { return f(ctx, d) }

// Registry manages handlers for different queues.
type Registry struct {
	handlers map[queue.Name]Handler
	mu       sync.RWMutex
}

// NewRegistry creates a new handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[queue.Name]Handler),
	}
}

// Register registers a handler for a queue, replacing any previous one.
func (r *Registry) Register(name queue.Name, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Handler returns the handler for a queue.
func (r *Registry) Handler(name queue.Name) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, name)
	}
	return handler, nil
}

// HasHandler reports whether a handler is registered for the queue.
func (r *Registry) HasHandler(name queue.Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Queues returns the registered queues in declaration order.
func (r *Registry) Queues() []queue.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]queue.Name, 0, len(r.handlers))
	for _, n := range queue.Names() {
		if _, ok := r.handlers[n]; ok {
			names = append(names, n)
		}
	}
	return slices.Clip(names)
}

// Worker runs consumers for every registered queue.
type Worker struct {
	bus            queue.Bus
	registry       *Registry
	logger         *slog.Logger
	consumers      int
	messageTimeout time.Duration

	cancel context.CancelFunc
	group  *errgroup.Group
	mu     sync.Mutex
}

// NewWorker creates a new queue worker.
func NewWorker(bus queue.Bus, registry *Registry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		bus:            bus,
		registry:       registry,
		logger:         logger,
		consumers:      config.DefaultWorkerCount,
		messageTimeout: config.DefaultWorkerMessageTimeout,
	}
}

// WithConsumers sets the number of consumers per queue.
func (w *Worker) WithConsumers(n int) *Worker {
	if n > 0 {
		w.consumers = n
	}
	return w
}

// WithMessageTimeout bounds each handler run.
func (w *Worker) WithMessageTimeout(d time.Duration) *Worker {
	if d > 0 {
		w.messageTimeout = d
	}
	return w
}

// Start launches the consumers. They run until Stop is called or ctx is
// cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.group != nil {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	w.group = g

	queues := w.registry.Queues()
	for _, name := range queues {
		h, err := w.registry.Handler(name)
		if err != nil {
			continue
		}
		for range w.consumers {
			g.Go(func() error {
				return w.bus.Consume(gctx, name, w.handlerFor(name, h))
			})
		}
	}

	w.logger.Info("queue worker started",
		slog.Int("queues", len(queues)),
		slog.Int("consumers_per_queue", w.consumers),
	)
}

// Stop cancels the consumers and waits for in-flight messages to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel, g := w.cancel, w.group
	w.cancel, w.group = nil, nil
	w.mu.Unlock()

	if g == nil {
		return nil
	}
	cancel()
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	w.logger.Info("queue worker stopped")
	return err
}

// Wait blocks until every consumer has returned, which happens when the
// context passed to Start is cancelled or a consumer fails permanently.
func (w *Worker) Wait() error {
	w.mu.Lock()
	g := w.group
	w.mu.Unlock()

	if g == nil {
		return nil
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) handlerFor(name queue.Name, h Handler) queue.HandlerFunc {
	return func(ctx context.Context, d queue.Delivery) error {
		ctx = log.WithMessage(ctx, name.String(), d.ID(), d.Attempt())
		return w.process(ctx, h, d)
	}
}

func (w *Worker) process(ctx context.Context, h Handler, d queue.Delivery) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, w.messageTimeout)
	defer cancel()

	w.logger.InfoContext(ctx, "processing message")

	if err := executeWithRecovery(ctx, h, d); err != nil {
		kind := fault.Classify(err)
		level := slog.LevelWarn
		if kind != fault.KindTransientIO {
			level = slog.LevelError
		}
		w.logger.Log(ctx, level, "message handling failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return err
	}

	w.logger.InfoContext(ctx, "message completed", slog.Duration("duration", time.Since(start)))
	return nil
}

func executeWithRecovery(ctx context.Context, h Handler, d queue.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, d)
}
