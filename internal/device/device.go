// Package device delivers side effects to the outside world: smart-home
// state to a device-control sink and print/open requests to the local
// hardware bridge.
//
// Every delivery is fire-and-forget. Calls return immediately, the request
// runs on its own goroutine behind a circuit breaker, and failures are logged
// at warn and swallowed. Close waits for in-flight deliveries.
package device

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/pkg/types"
)

// DefaultTimeout bounds one delivery when no timeout is configured.
const DefaultTimeout = 3 * time.Second

// Sink receives the full device state after every local command.
type Sink interface {
	Notify(state types.DeviceState)
}

// Multi fans a notification out to several sinks.
type Multi []Sink

// Notify forwards state to every sink in order.
func (m Multi) Notify(state types.DeviceState) {
	for _, s := range m {
		s.Notify(state)
	}
}

// Option configures the shared delivery behaviour of bridges and sinks.
type Option func(*deliverer)

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) Option {
	return func(dl *deliverer) {
		if d > 0 {
			dl.timeout = d
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(dl *deliverer) { dl.breaker = cb }
}

// WithMetrics records one counter sample per delivery.
func WithMetrics(m *observe.Metrics) Option {
	return func(dl *deliverer) { dl.metrics = m }
}

// deliverer runs fire-and-forget requests for one named target.
type deliverer struct {
	name    string
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
	wg      sync.WaitGroup
}

func newDeliverer(name string, opts []Option) *deliverer {
	dl := &deliverer{name: name, timeout: DefaultTimeout}
	for _, o := range opts {
		o(dl)
	}
	if dl.breaker == nil {
		dl.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: name})
	}
	return dl
}

// fire runs fn in the background. op labels the log line. The timeout is
// applied inside the breaker so a hung target counts as a failure.
func (dl *deliverer) fire(op string, fn func(context.Context) error) {
	dl.wg.Go(func() {
		ctx := context.Background()
		err := dl.breaker.Do(ctx, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, dl.timeout)
			defer cancel()
			return fn(ctx)
		})
		status := "ok"
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			status = "skipped"
			slog.Warn("device: delivery skipped, circuit open", "target", dl.name, "op", op)
		case err != nil:
			status = "error"
			slog.Warn("device: delivery failed", "target", dl.name, "op", op, "err", err)
		default:
			slog.Debug("device: delivered", "target", dl.name, "op", op)
		}
		if dl.metrics != nil {
			dl.metrics.RecordDeviceNotification(ctx, dl.name, status)
		}
	})
}

// wait blocks until every delivery started so far has finished.
func (dl *deliverer) wait() { dl.wg.Wait() }
