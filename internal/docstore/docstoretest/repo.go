// Package docstoretest provides an in-memory document repository with the
// same subscription semantics as docstore.Store, for deterministic tests.
//
// Nothing is delivered until the test calls Drain.
package docstoretest

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/docstore"
	"github.com/roach88/storagepeer/internal/keyring"
	"github.com/roach88/storagepeer/internal/link"
)

// Repo is an in-memory repository.
type Repo struct {
	hub *docstore.Hub

	mu     sync.Mutex
	docs   map[string]content.Map
	seqs   map[string]int64
	keys   map[string]ed25519.PrivateKey
	opened map[string]int
}

// New returns an empty repository with its own dispatcher.
func New() *Repo {
	r := &Repo{
		docs:   make(map[string]content.Map),
		seqs:   make(map[string]int64),
		keys:   make(map[string]ed25519.PrivateKey),
		opened: make(map[string]int),
	}
	r.hub = docstore.NewHub(docstore.NewDispatcher(nil), r)
	return r
}

// Dispatcher returns the repository's dispatcher.
func (r *Repo) Dispatcher() *docstore.Dispatcher {
	return r.hub.Dispatcher()
}

// Drain runs every pending delivery, including those queued by the
// callbacks themselves.
func (r *Repo) Drain() int {
	return r.hub.Dispatcher().Drain()
}

// Open implements the repository interface used by the engine packages.
func (r *Repo) Open(doc link.Link) *docstore.Handle {
	r.mu.Lock()
	r.opened[doc.Bare().ID]++
	r.mu.Unlock()
	return r.hub.Open(doc)
}

// OpenCount returns how many times doc has been opened.
func (r *Repo) OpenCount(doc link.Link) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened[doc.Bare().ID]
}

// LiveHandles returns the number of handles not yet closed.
func (r *Repo) LiveHandles() int {
	return r.hub.OpenCount()
}

// Create stores a new signed document.
func (r *Repo) Create(initial content.Map) link.Link {
	id, secret, err := keyring.NewDocumentKey()
	if err != nil {
		panic(err)
	}
	doc := link.Document(id)
	r.mu.Lock()
	r.keys[id] = secret
	r.mu.Unlock()
	r.Put(doc, initial)
	return doc
}

// Put replaces doc's content and publishes it. Every Put is a new
// version, even when the content is unchanged.
func (r *Repo) Put(doc link.Link, body content.Map) {
	if body == nil {
		body = content.Map{}
	}
	doc = doc.Bare()
	stored := content.Clone(body).(content.Map)
	r.mu.Lock()
	r.docs[doc.ID] = stored
	r.seqs[doc.ID]++
	seq := r.seqs[doc.ID]
	r.mu.Unlock()
	r.hub.Publish(doc, content.Clone(stored).(content.Map), seq)
}

// Change mutates doc's content and publishes the result.
func (r *Repo) Change(doc link.Link, fn func(content.Map)) {
	doc = doc.Bare()
	r.mu.Lock()
	next, ok := r.docs[doc.ID]
	if !ok {
		next = content.Map{}
	}
	next = content.Clone(next).(content.Map)
	r.mu.Unlock()

	fn(next)
	r.Put(doc, next)
}

// Snapshot implements docstore.Source.
func (r *Repo) Snapshot(_ context.Context, doc link.Link) (content.Map, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := doc.Bare().ID
	body, ok := r.docs[id]
	if !ok {
		return nil, 0, fmt.Errorf("%s: %w", doc, docstore.ErrNotFound)
	}
	return content.Clone(body).(content.Map), r.seqs[id], nil
}

// SigningKey implements keyring.SigningKeys.
func (r *Repo) SigningKey(_ context.Context, doc link.Link) (ed25519.PrivateKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[doc.Bare().ID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", doc, docstore.ErrNoSigningKey)
	}
	return key, nil
}
