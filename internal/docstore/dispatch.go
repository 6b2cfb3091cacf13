package docstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/storagepeer/internal/content"
)

// delivery is one pending callback invocation carrying the document
// content at sequence number seq.
type delivery struct {
	handle *Handle
	sub    *subscription
	value  content.Value
	seq    int64
}

// Dispatcher is the single-writer event loop that runs subscription
// callbacks.
//
// Enqueue is safe from any goroutine. Delivery happens on whichever
// goroutine calls Run or Drain, one callback at a time.
type Dispatcher struct {
	logger *slog.Logger

	mu     sync.Mutex
	queue  []delivery
	closed bool
	signal chan struct{} // buffered, size 1

	runMu sync.Mutex // held for each delivery
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		queue:  make([]delivery, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

func (d *Dispatcher) enqueue(dl delivery) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.queue = append(d.queue, dl)

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

func (d *Dispatcher) tryDequeue() (delivery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return delivery{}, false
	}
	dl := d.queue[0]
	d.queue[0] = delivery{}
	if len(d.queue) == 1 {
		d.queue = d.queue[:0]
	} else {
		d.queue = d.queue[1:]
	}
	return dl, true
}

// Len returns the number of pending deliveries.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close stops accepting deliveries and wakes Run. Pending deliveries are
// still run by the next Drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.signal)
}

// Run delivers queued callbacks until ctx is canceled or the dispatcher
// is closed. A callback that panics is logged and the loop continues.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Debug("dispatcher started")
	for {
		d.Drain()

		select {
		case <-ctx.Done():
			d.logger.Debug("dispatcher stopped", "reason", ctx.Err())
			return ctx.Err()
		case _, ok := <-d.signal:
			if !ok {
				d.Drain()
				d.logger.Debug("dispatcher closed")
				return nil
			}
		}
	}
}

// Drain delivers everything queued, including deliveries enqueued by the
// callbacks it runs, and returns how many callbacks ran.
func (d *Dispatcher) Drain() int {
	n := 0
	for {
		dl, ok := d.tryDequeue()
		if !ok {
			return n
		}
		if d.deliver(dl) {
			n++
		}
	}
}

func (d *Dispatcher) deliver(dl delivery) (ran bool) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if dl.handle.Closed() {
		return false
	}

	// A snapshot and a publish can race to the queue. Whatever arrives
	// second with a version the callback already has is stale.
	if dl.seq <= dl.sub.seen {
		d.logger.Debug("stale delivery skipped",
			"doc_url", dl.handle.doc.String(),
			"seq", dl.seq,
			"seen", dl.sub.seen)
		return false
	}
	dl.sub.seen = dl.seq

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("subscription callback panicked",
				"doc_url", dl.handle.doc.String(),
				"panic", r)
		}
	}()
	dl.sub.fn(dl.value)
	return true
}
