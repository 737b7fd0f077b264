package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Recorder observes notification outcomes. result is sent, failed or dropped.
type Recorder interface {
	ObserveNotification(channel, result string)
}

// Dispatcher delivers messages off the request path through a bounded queue
// drained by a fixed set of workers. Delivery failures are logged only.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	recorder Recorder
	logger   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

// NewDispatcher starts workers delivering through notifier.
func NewDispatcher(notifier Notifier, queueSize, workers int, timeout time.Duration, recorder Recorder, logger zerolog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		recorder: recorder,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		queue:    make(chan Message, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Enqueue schedules a message without blocking. It reports false when the
// queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.record("dropped")
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		d.logger.Warn().Str("feed", msg.FeedKey).Str("group", msg.Group).Msg("notification queue full, dropping message")
		d.record("dropped")
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, msg); err != nil {
		d.logger.Error().Err(err).
			Str("feed", msg.FeedKey).
			Str("group", msg.Group).
			Str("topic", msg.Topic).
			Msg("failed to dispatch notification")
		d.record("failed")
		return
	}
	d.record("sent")
}

func (d *Dispatcher) record(result string) {
	if d.recorder != nil {
		d.recorder.ObserveNotification(d.notifier.Name(), result)
	}
}
