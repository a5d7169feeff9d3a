// Package events hands verified Stripe webhook events to the entitlement
// resolver, either in-process or through an SQS queue.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
)

var ErrClosed = errors.New("events: dispatcher closed")

// Applier projects one event onto durable state.
type Applier interface {
	ApplyWebhookEvent(ctx context.Context, event stripe.Event) error
}

// Dispatcher accepts an event for processing after the HTTP response.
type Dispatcher interface {
	Dispatch(ctx context.Context, event stripe.Event) error
}

// Observer is told how each applied event ended.
type Observer func(eventType string, err error)

// AsyncDispatcher applies events on a fixed pool of goroutines.
type AsyncDispatcher struct {
	applier  Applier
	jobs     chan stripe.Event
	timeout  time.Duration
	observe  Observer
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

func NewAsyncDispatcher(applier Applier, workers, queueSize int, timeout time.Duration, observe Observer) *AsyncDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &AsyncDispatcher{
		applier: applier,
		jobs:    make(chan stripe.Event, queueSize),
		timeout: timeout,
		observe: observe,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *AsyncDispatcher) worker() {
	defer d.wg.Done()
	for ev := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.applier.ApplyWebhookEvent(ctx, ev)
		cancel()
		if err != nil {
			log.WithFields(log.Fields{"event_id": ev.ID, "type": ev.Type, "err": err}).Error("stripe event processing failed")
		}
		if d.observe != nil {
			d.observe(string(ev.Type), err)
		}
	}
}

// Dispatch queues event, waiting for room until ctx is done.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, event stripe.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.jobs <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones until ctx is done.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
	})

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
