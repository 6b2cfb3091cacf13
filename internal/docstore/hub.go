package docstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/link"
)

// Source loads the current content of a document together with its
// sequence number. Sequence numbers grow by at least one on every change
// to the same document.
type Source interface {
	Snapshot(ctx context.Context, doc link.Link) (content.Map, int64, error)
}

// Hub tracks open handles and fans document updates out to them through
// a Dispatcher. Store uses one internally; alternative repositories can
// embed one to get the same delivery semantics.
type Hub struct {
	dispatcher *Dispatcher
	source     Source

	mu      sync.Mutex
	handles map[string]map[*Handle]struct{}
}

// NewHub returns a hub that loads snapshots from source and delivers on d.
func NewHub(d *Dispatcher, source Source) *Hub {
	return &Hub{
		dispatcher: d,
		source:     source,
		handles:    make(map[string]map[*Handle]struct{}),
	}
}

// Dispatcher returns the dispatcher deliveries are queued on.
func (h *Hub) Dispatcher() *Dispatcher {
	return h.dispatcher
}

// Open returns a new handle for doc. Wrapped links open their bare document.
func (h *Hub) Open(doc link.Link) *Handle {
	doc = doc.Bare()
	handle := &Handle{hub: h, doc: doc}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.handles[doc.ID]
	if !ok {
		set = make(map[*Handle]struct{})
		h.handles[doc.ID] = set
	}
	set[handle] = struct{}{}
	return handle
}

// Publish queues v, the content of doc at sequence number seq, for every
// subscriber of doc.
func (h *Hub) Publish(doc link.Link, v content.Map, seq int64) {
	h.mu.Lock()
	targets := make([]*Handle, 0, len(h.handles[doc.ID]))
	for handle := range h.handles[doc.ID] {
		targets = append(targets, handle)
	}
	h.mu.Unlock()

	for _, handle := range targets {
		for _, sub := range handle.subscriptions() {
			h.dispatcher.enqueue(delivery{handle: handle, sub: sub, value: v, seq: seq})
		}
	}
}

// OpenCount returns the number of open handles, for status reporting.
func (h *Hub) OpenCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.handles {
		n += len(set)
	}
	return n
}

func (h *Hub) remove(handle *Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.handles[handle.doc.ID]
	delete(set, handle)
	if len(set) == 0 {
		delete(h.handles, handle.doc.ID)
	}
}

// Handle is a live view of one document.
type Handle struct {
	hub *Hub
	doc link.Link

	mu     sync.Mutex
	subs   []*subscription
	closed atomic.Bool
}

// subscription is one callback registered on a handle. seen is the
// highest sequence number delivered to fn and is only touched by the
// dispatcher while it holds runMu.
type subscription struct {
	fn   func(content.Value)
	seen int64
}

// URL returns the document this handle watches.
func (h *Handle) URL() link.Link {
	return h.doc
}

// Subscribe registers fn for every future change and queues a delivery of
// the current content, if the document exists yet. fn is never called
// before Subscribe returns, and never sees an older version of the
// document after a newer one.
func (h *Handle) Subscribe(fn func(content.Value)) {
	if h.closed.Load() {
		return
	}
	sub := &subscription{fn: fn}
	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()

	// Registered before the read, so a change committed after it is
	// published to sub as well.
	doc, seq, err := h.hub.source.Snapshot(context.Background(), h.doc)
	if err != nil {
		// Not replicated yet; the first publish delivers it.
		h.hub.dispatcher.logger.Debug("no snapshot for subscription",
			"doc_url", h.doc.String(),
			"error", err)
		return
	}
	h.hub.dispatcher.enqueue(delivery{handle: h, sub: sub, value: doc, seq: seq})
}

// Close stops all deliveries to this handle, including queued ones.
// Safe to call more than once.
func (h *Handle) Close() {
	if h.closed.Swap(true) {
		return
	}
	h.hub.remove(h)
	h.mu.Lock()
	h.subs = nil
	h.mu.Unlock()
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

func (h *Handle) subscriptions() []*subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*subscription(nil), h.subs...)
}
