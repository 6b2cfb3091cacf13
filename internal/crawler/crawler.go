// Package crawler keeps every document and file reachable from a set of
// roots tracked for replication.
//
// The tracked set only grows until Close. Each tracked document stays
// subscribed; every update is re-scanned for links and each new link is
// tracked in turn. Tracked files are fetched once, best-effort.
package crawler

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/docstore"
	"github.com/roach88/storagepeer/internal/link"
	"github.com/roach88/storagepeer/internal/traverse"
)

// Repo opens live document handles.
type Repo interface {
	Open(doc link.Link) *docstore.Handle
}

// FileFetcher brings a file into local storage.
type FileFetcher interface {
	Fetch(ctx context.Context, file link.Link) error
}

// EventKind says what was newly tracked.
type EventKind string

const (
	EventDocument EventKind = "document"
	EventFile     EventKind = "file"
)

// Event reports a newly tracked identifier.
type Event struct {
	Kind EventKind `json:"kind"`
	Link link.Link `json:"link"`
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithLogger sets the crawler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) { c.logger = logger }
}

// WithObserver registers fn to receive an Event for every newly tracked
// identifier. fn runs synchronously and must not block.
func WithObserver(fn func(Event)) Option {
	return func(c *Crawler) { c.observers = append(c.observers, fn) }
}

// Crawler tracks documents and files.
type Crawler struct {
	repo      Repo
	fetcher   FileFetcher
	logger    *slog.Logger
	observers []func(Event)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	docs   map[string]*docstore.Handle // nil until the handle is open
	files  map[string]struct{}
	closed bool
}

// New returns a crawler over repo. fetcher may be nil, in which case files
// are tracked but never fetched.
func New(repo Repo, fetcher FileFetcher, opts ...Option) *Crawler {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Crawler{
		repo:    repo,
		fetcher: fetcher,
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		docs:    make(map[string]*docstore.Handle),
		files:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CrawlURL parses s and tracks it. Strings that are not identifiers are
// ignored.
func (c *Crawler) CrawlURL(s string) {
	l, err := link.Parse(s)
	if err != nil {
		c.logger.Debug("ignoring unrecognized identifier", "value", s)
		return
	}
	c.Crawl(l)
}

// Crawl tracks l. Tracking is idempotent; wrapped links track their bare
// document.
func (c *Crawler) Crawl(l link.Link) {
	switch l.Kind {
	case link.KindWrapped:
		c.Crawl(l.Bare())
	case link.KindDocument:
		c.crawlDocument(l)
	case link.KindFile:
		c.crawlFile(l)
	default:
		c.logger.Debug("ignoring unrecognized identifier", "value", l.String())
	}
}

func (c *Crawler) crawlDocument(doc link.Link) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.docs[doc.ID]; ok {
		c.mu.Unlock()
		return
	}
	// Claim the id before subscribing so overlapping discoveries are no-ops.
	c.docs[doc.ID] = nil
	c.mu.Unlock()

	handle := c.repo.Open(doc)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		handle.Close()
		return
	}
	c.docs[doc.ID] = handle
	c.mu.Unlock()

	c.logger.Debug("tracking document", "doc_url", doc.String())
	c.emit(Event{Kind: EventDocument, Link: doc})

	handle.Subscribe(func(v content.Value) {
		c.onUpdate(doc, v)
	})
}

func (c *Crawler) crawlFile(file link.Link) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.files[file.ID]; ok {
		c.mu.Unlock()
		return
	}
	c.files[file.ID] = struct{}{}
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Debug("tracking file", "file_url", file.String())
	c.emit(Event{Kind: EventFile, Link: file})

	go func() {
		defer c.wg.Done()
		if c.fetcher == nil {
			return
		}
		if err := c.fetcher.Fetch(c.ctx, file); err != nil && c.ctx.Err() == nil {
			c.logger.Debug("file fetch failed", "file_url", file.String(), "error", err)
		}
	}()
}

func (c *Crawler) onUpdate(doc link.Link, v content.Value) {
	found := traverse.IterativeDFSWithLogger(c.logger, v, isLink)
	c.logger.Debug("document updated", "doc_url", doc.String(), "links", len(found))
	for _, f := range found {
		c.CrawlURL(string(f.(content.String)))
	}
}

func isLink(v content.Value) bool {
	s, ok := v.(content.String)
	return ok && link.IsLink(string(s))
}

// Close releases every subscription, forgets every tracked identifier and
// cancels outstanding fetches. Crawl calls after Close are ignored.
// Safe to call more than once.
func (c *Crawler) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	handles := make([]*docstore.Handle, 0, len(c.docs))
	for _, h := range c.docs {
		if h != nil {
			handles = append(handles, h)
		}
	}
	c.docs = make(map[string]*docstore.Handle)
	c.files = make(map[string]struct{})
	c.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	c.cancel()
	c.wg.Wait()
}

// Documents returns the tracked documents, sorted.
func (c *Crawler) Documents() []link.Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]link.Link, 0, len(c.docs))
	for id := range c.docs {
		out = append(out, link.Document(id))
	}
	slices.SortFunc(out, compareLinks)
	return out
}

// Files returns the tracked files, sorted.
func (c *Crawler) Files() []link.Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]link.Link, 0, len(c.files))
	for id := range c.files {
		out = append(out, link.File(id))
	}
	slices.SortFunc(out, compareLinks)
	return out
}

// IsTracked reports whether l (or the document behind a wrapped l) is
// tracked.
func (c *Crawler) IsTracked(l link.Link) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch l.Kind {
	case link.KindDocument, link.KindWrapped:
		_, ok := c.docs[l.ID]
		return ok
	case link.KindFile:
		_, ok := c.files[l.ID]
		return ok
	default:
		return false
	}
}

func (c *Crawler) emit(e Event) {
	for _, fn := range c.observers {
		fn(e)
	}
}

func compareLinks(a, b link.Link) int {
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}
