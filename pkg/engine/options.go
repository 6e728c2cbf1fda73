package engine

import (
	"context"
	"time"

	"github.com/dukex/relay/pkg/eventbus"
	"github.com/dukex/relay/pkg/metrics"
	"github.com/dukex/relay/pkg/protocol"
	"go.opentelemetry.io/otel/trace"
)

const DefaultNodeTimeout = 30 * time.Second

type Option func(*Coordinator)

// WithNodeTimeout bounds every node execution. Non-positive values are ignored.
func WithNodeTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.nodeTimeout = timeout
		}
	}
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(c *Coordinator) {
		if publisher != nil {
			c.publisher = publisher
		}
	}
}

func WithNotifier(notifier protocol.Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = notifier
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithSleep replaces the wait between retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) {
		c.sleep = sleep
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
