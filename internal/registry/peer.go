// Package registry runs a storage peer: it watches the peer's registry
// document for sealed workspace URLs, and keeps every registered workspace
// crawled and monitored for invitations.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/crawler"
	"github.com/roach88/storagepeer/internal/docstore"
	"github.com/roach88/storagepeer/internal/invite"
	"github.com/roach88/storagepeer/internal/keyring"
	"github.com/roach88/storagepeer/internal/link"
)

// ShareContentType is the content type carried by a peer's share link.
const ShareContentType = "storage-peer"

// Repo opens live document handles.
type Repo interface {
	Open(doc link.Link) *docstore.Handle
}

// Crypto is the set of keyring operations a peer needs.
type Crypto interface {
	invite.Crypto
	OpenSealedBox(ctx context.Context, kp keyring.KeyPair, sealed keyring.SealedBox) (string, error)
}

// Option configures a Peer.
type Option func(*Peer)

// WithLogger sets the peer's logger. The crawler and monitors inherit it.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Peer) { p.logger = logger }
}

// WithFetcher sets the fetcher used for tracked files.
func WithFetcher(f crawler.FileFetcher) Option {
	return func(p *Peer) { p.fetcher = f }
}

// WithObserver forwards crawler events to fn.
func WithObserver(fn func(crawler.Event)) Option {
	return func(p *Peer) { p.observers = append(p.observers, fn) }
}

// Peer is a running storage peer.
type Peer struct {
	repo      Repo
	crypto    Crypto
	keys      keyring.KeyPair
	registry  link.Link
	logger    *slog.Logger
	fetcher   crawler.FileFetcher
	observers []func(crawler.Event)
	crawler   *crawler.Crawler

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handle   *docstore.Handle
	monitors map[string]*invite.Monitor
	order    []link.Link
	closed   bool
}

// New returns a peer for the registry document. Nothing is watched until
// Init.
func New(repo Repo, crypto Crypto, keys keyring.KeyPair, registryURL link.Link, opts ...Option) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		repo:     repo,
		crypto:   crypto,
		keys:     keys,
		registry: registryURL.Bare(),
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		monitors: make(map[string]*invite.Monitor),
	}
	for _, opt := range opts {
		opt(p)
	}

	copts := []crawler.Option{crawler.WithLogger(p.logger)}
	for _, fn := range p.observers {
		copts = append(copts, crawler.WithObserver(fn))
	}
	p.crawler = crawler.New(repo, p.fetcher, copts...)
	return p
}

// RegistryURL returns the registry document.
func (p *Peer) RegistryURL() link.Link {
	return p.registry
}

// ShareLink returns the link clients use to add this peer.
func (p *Peer) ShareLink() string {
	s, err := link.Wrap(ShareContentType, p.registry.String())
	if err != nil {
		// registry is always a bare document link.
		panic(fmt.Sprintf("registry: wrap %s: %v", p.registry, err))
	}
	return s
}

// Crawler returns the peer's crawler.
func (p *Peer) Crawler() *crawler.Crawler {
	return p.crawler
}

// Init starts watching the registry document. Calling it again has no
// effect.
func (p *Peer) Init() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.handle != nil {
		return
	}
	p.handle = p.repo.Open(p.registry)
	p.handle.Subscribe(p.onRegistry)
	p.logger.Info("watching registry", "registry_url", p.registry.String())
}

func (p *Peer) onRegistry(v content.Value) {
	doc, ok := v.(content.Map)
	if !ok {
		return
	}
	entries, ok := doc.Map("registry")
	if !ok {
		return
	}
	for _, key := range entries.SortedKeys() {
		sealed, ok := entries.String(key)
		if !ok {
			p.logger.Debug("skipping registry entry that is not a sealed box", "key", key)
			continue
		}
		plain, err := p.crypto.OpenSealedBox(p.ctx, p.keys, keyring.SealedBox(sealed))
		if err != nil {
			p.logger.Debug("skipping registry entry that did not open", "key", key, "error", err)
			continue
		}
		workspace, err := link.Parse(plain)
		if err != nil || workspace.Kind == link.KindFile {
			p.logger.Debug("skipping registry entry with malformed payload", "key", key)
			continue
		}
		p.Register(workspace)
	}
}

// Register crawls workspace and monitors it for invitations. Registering
// the same workspace again has no effect.
func (p *Peer) Register(workspace link.Link) {
	if workspace.Kind != link.KindDocument && workspace.Kind != link.KindWrapped {
		return
	}
	workspace = workspace.Bare()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if _, ok := p.monitors[workspace.ID]; ok {
		return
	}

	p.crawler.Crawl(workspace)
	p.monitors[workspace.ID] = invite.New(p.repo, p.crypto, workspace, p.Register,
		invite.WithLogger(p.logger))
	p.order = append(p.order, workspace)
	p.logger.Info("registered workspace", "workspace_url", workspace.String())
}

// Workspaces returns the registered workspaces in registration order.
func (p *Peer) Workspaces() []link.Link {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.order)
}

// Monitor returns the monitor for workspace, if it is registered.
func (p *Peer) Monitor(workspace link.Link) (*invite.Monitor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.monitors[workspace.Bare().ID]
	return m, ok
}

// Close stops watching the registry and closes every monitor and the
// crawler. Safe to call more than once.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	handle := p.handle
	monitors := make([]*invite.Monitor, 0, len(p.monitors))
	for _, m := range p.monitors {
		monitors = append(monitors, m)
	}
	p.monitors = make(map[string]*invite.Monitor)
	p.order = nil
	p.mu.Unlock()

	if handle != nil {
		handle.Close()
	}
	for _, m := range monitors {
		m.Close()
	}
	p.crawler.Close()
	p.cancel()
}
