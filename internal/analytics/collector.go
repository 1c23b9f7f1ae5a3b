// Package analytics buffers search events and publishes them to Kafka in
// the background. Tracking never blocks the request path: when the buffer
// is full the event is dropped and counted, not queued.
package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/searchstack/ranker/pkg/kafka"
)

type Collector struct {
	producer *kafka.Producer
	eventCh  chan SearchEvent
	logger   *slog.Logger
	quit     chan struct{}
	done     chan struct{}
	closed   atomic.Bool
}

func NewCollector(producer *kafka.Producer, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		producer: producer,
		eventCh:  make(chan SearchEvent, bufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event := <-c.eventCh:
				c.publish(ctx, event)
			case <-c.quit:
				c.drainRemaining()
				return
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Events exposes the buffered stream for alternate sinks.
func (c *Collector) Events() <-chan SearchEvent {
	return c.eventCh
}

// Track enqueues an event without blocking. Events arriving after Close
// are dropped.
func (c *Collector) Track(event SearchEvent) {
	if c.closed.Load() {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops intake and waits for buffered events to flush. It is safe
// to call more than once. The event channel is never closed so a late
// Track can only lose its event, not panic.
func (c *Collector) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.quit)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event SearchEvent) {
	if c.producer == nil {
		return
	}
	if err := c.producer.Publish(ctx, kafka.Event{
		Key:   string(event.Type),
		Value: event,
	}); err != nil {
		c.logger.Error("failed to publish analytics event", "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event := <-c.eventCh:
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}
