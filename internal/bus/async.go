// internal/bus/async.go
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tamzrod/baywatch/internal/health"
)

const publishTimeout = 3 * time.Second

// job is one queued publish.
type job struct {
	ev   *Event
	snap *health.Snapshot
}

// Async queues publishes onto a single worker so callers never wait on the
// broker. When the queue is full the message is dropped and counted.
type Async struct {
	next Publisher
	log  *slog.Logger

	queue chan job
	done  chan struct{}

	mu      sync.Mutex
	dropped uint64
	closed  bool
}

// NewAsync starts the worker. Close drains what is queued.
func NewAsync(next Publisher, buffer int, log *slog.Logger) *Async {
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		next:  next,
		log:   log,
		queue: make(chan job, buffer),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

// Status enqueues a bay event. Safe from any goroutine.
func (a *Async) Status(ev Event) {
	a.enqueue(job{ev: &ev})
}

// Health enqueues a snapshot.
func (a *Async) Health(s health.Snapshot) {
	a.enqueue(job{snap: &s})
}

// Dropped is the number of messages discarded on a full queue.
func (a *Async) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

func (a *Async) enqueue(j job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- j:
	default:
		a.dropped++
		if a.dropped == 1 || a.dropped%100 == 0 {
			a.log.Warn("bus queue full, dropping", "dropped", a.dropped)
		}
	}
}

func (a *Async) loop() {
	defer close(a.done)
	for j := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		var err error
		if j.ev != nil {
			err = a.next.PublishStatus(ctx, *j.ev)
		} else {
			err = a.next.PublishHealth(ctx, *j.snap)
		}
		cancel()
		if err != nil {
			a.log.Warn("bus publish failed", "err", err)
		}
	}
}

// Close stops accepting, flushes the queue and closes the publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}
