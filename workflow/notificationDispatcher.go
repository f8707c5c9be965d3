package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Sink delivers a notification to one transport.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// NotificationDispatcher fans notifications out to its sinks from a bounded
// queue. Notify never blocks: when the queue is full the notification is dropped
// and logged. Each sink gets exactly one attempt; failures are logged and not
// retried.
type NotificationDispatcher struct {
	Logger       *logrus.Logger
	DispatcherID string
	Sinks        []Sink

	Workers     int
	SendTimeout time.Duration

	queue  chan Notification
	mu     sync.RWMutex
	closed bool
}

func NewNotificationDispatcher(logger *logrus.Logger, queueSize int, sinks ...Sink) *NotificationDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &NotificationDispatcher{
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		Sinks:        sinks,
		Workers:      2,
		SendTimeout:  10 * time.Second,
		queue:        make(chan Notification, queueSize),
	}
}

func (d *NotificationDispatcher) Notify(n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logDropped(n, "dispatcher closed")
		return
	}
	select {
	case d.queue <- n:
	default:
		d.logDropped(n, "queue full")
	}
}

func (d *NotificationDispatcher) logDropped(n Notification, reason string) {
	d.Logger.WithFields(logrus.Fields{
		"field":          "NotificationDispatcher",
		"dispatcher_id":  d.DispatcherID,
		"event_type":     n.EventType,
		"invoice_id":     n.InvoiceID,
		"to_state":       n.ToState,
		"correlation_id": n.CorrelationID,
	}).Warn("notification dropped: " + reason)
}

// Run starts the workers and blocks until ctx is done or Close was called and
// the queue has drained.
func (d *NotificationDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	workers := d.Workers
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case n, ok := <-d.queue:
					if !ok {
						return
					}
					d.dispatch(ctx, n)
				}
			}
		}()
	}
	wg.Wait()
}

// Close stops accepting notifications. Queued ones are still delivered by Run.
func (d *NotificationDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

func (d *NotificationDispatcher) dispatch(ctx context.Context, n Notification) {
	for _, sink := range d.Sinks {
		sendCtx, cancel := context.WithTimeout(ctx, d.SendTimeout)
		err := d.send(sendCtx, sink, n)
		cancel()
		if err != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":          "NotificationDispatcher",
				"dispatcher_id":  d.DispatcherID,
				"sink":           sink.Name(),
				"event_type":     n.EventType,
				"invoice_id":     n.InvoiceID,
				"to_state":       n.ToState,
				"correlation_id": n.CorrelationID,
			}).Error("notification delivery failed: " + err.Error())
		}
	}
}

// send isolates sink panics so one bad sink cannot stop the worker.
func (d *NotificationDispatcher) send(ctx context.Context, sink Sink, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Send(ctx, n)
}
