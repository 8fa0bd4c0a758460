package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Default dispatcher settings.
const (
	DefaultInterval  = 2 * time.Second
	DefaultBatchSize = 256
)

// Dispatcher drains the outbox into the registered sinks.
type Dispatcher struct {
	outbox    *Outbox
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger

	mu    sync.Mutex // serializes Flush
	sinks []Sink

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Zero interval or batch size select
// the defaults.
func NewDispatcher(outbox *Outbox, interval time.Duration, batchSize int, logger zerolog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{
		outbox:    outbox,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Register adds a sink. Call before Start.
func (d *Dispatcher) Register(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Sinks returns the registered sink names.
func (d *Dispatcher) Sinks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Notify wakes the worker early. It never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start launches the background worker.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.worker(ctx)
	d.logger.Info().
		Dur("interval", d.interval).
		Int("batch_size", d.batchSize).
		Strs("sinks", d.Sinks()).
		Msg("event dispatcher started")
}

// Stop halts the worker after a final flush and closes sinks.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sinks {
		if c, ok := s.(Closer); ok {
			if err := c.Close(); err != nil {
				d.logger.Warn().Err(err).Str("sink", s.Name()).Msg("close sink")
			}
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			d.drain(context.Background())
			return
		case <-ctx.Done():
			return
		case <-d.wake:
			d.drain(ctx)
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// drain flushes until the outbox is empty or a delivery fails.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		n, err := d.Flush(ctx)
		if err != nil {
			d.logger.Warn().Err(err).Msg("event delivery failed, will retry")
			return
		}
		if n < d.batchSize {
			return
		}
	}
}

// Flush delivers one batch to every sink and acknowledges it only when all
// sinks succeed. It returns the number of events acknowledged.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	batch, err := d.outbox.Pending(d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	start := time.Now()
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, batch); err != nil {
			return 0, fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}
	if err := d.outbox.Ack(batch); err != nil {
		return 0, err
	}

	d.logger.Debug().
		Int("batch_size", len(batch)).
		Uint64("last_seq", batch[len(batch)-1].Seq).
		Dur("elapsed", time.Since(start)).
		Msg("flushed event batch")
	return len(batch), nil
}
