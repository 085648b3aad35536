package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-fallwatch/internal/log"
	"github.com/teslashibe/go-fallwatch/pkg/metrics"
)

// Delivery defaults.
const (
	DefaultDeliveryTimeout = 30 * time.Second
	DefaultRetryDelay      = 2 * time.Second
)

// Handler consumes events off the monitor's critical path.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// DispatcherConfig controls delivery.
type DispatcherConfig struct {
	Timeout    time.Duration
	RetryDelay time.Duration
}

// DefaultDispatcherConfig returns the production delivery settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Timeout:    DefaultDeliveryTimeout,
		RetryDelay: DefaultRetryDelay,
	}
}

// Dispatcher fans events out to handlers, each delivery on its own
// goroutine. A failed delivery is retried once, then logged and counted.
type Dispatcher struct {
	cfg     DispatcherConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
	closed   bool
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(cfg DispatcherConfig, m *metrics.Metrics, handlers ...Handler) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDeliveryTimeout
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	return &Dispatcher{
		cfg:      cfg,
		metrics:  m,
		logger:   log.With("component", "dispatcher"),
		handlers: handlers,
	}
}

// Add registers another handler.
func (d *Dispatcher) Add(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Dispatch implements Sink. It never blocks on handlers. Events dispatched
// after Close are dropped.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event", "kind", ev.Kind, "id", ev.ID)
		return
	}
	for _, h := range d.handlers {
		d.wg.Add(1)
		go d.deliver(h, ev)
	}
}

func (d *Dispatcher) deliver(h Handler, ev Event) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	err := h.Handle(ctx, ev)
	if err == nil {
		return
	}
	d.logger.Warn("delivery failed, retrying",
		"handler", h.Name(), "kind", ev.Kind, "error", err)

	t := time.NewTimer(d.cfg.RetryDelay)
	select {
	case <-t.C:
		err = h.Handle(ctx, ev)
	case <-ctx.Done():
		t.Stop()
		err = ctx.Err()
	}
	if err == nil {
		return
	}

	d.logger.Error("delivery failed",
		"handler", h.Name(), "kind", ev.Kind, "id", ev.ID, "error", err)
	d.metrics.NotificationFailure(h.Name())
}

// Close stops accepting events and waits for in-flight deliveries or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
