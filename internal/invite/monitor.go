// Package invite watches a workspace's contacts for encrypted invitations
// addressed to that workspace.
//
// A workspace document carries:
//
//	selfId      the workspace owner's contact URL
//	contactIds  URLs of known contacts
//	secretKey   the workspace's encryption secret key, signed by the workspace
//
// A contact document carries:
//
//	encryptionKey  the contact's public encryption key, signed by the contact
//	invites        map of recipient selfId -> list of boxes
//
// Each box opens (sender = contact public key, recipient = workspace secret
// key) to a document URL naming an invited workspace.
package invite

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/docstore"
	"github.com/roach88/storagepeer/internal/keyring"
	"github.com/roach88/storagepeer/internal/link"
)

// Repo opens live document handles.
type Repo interface {
	Open(doc link.Link) *docstore.Handle
}

// Crypto is the subset of keyring operations the monitor needs.
type Crypto interface {
	VerifiedMessage(ctx context.Context, authority link.Link, m keyring.SignedMessage) (string, error)
	OpenBox(ctx context.Context, senderPublic keyring.EncodedPublicKey, recipientSecret keyring.EncodedSecretKey, b keyring.Box) (string, error)
}

// RegisterFunc receives every invited workspace.
type RegisterFunc func(workspace link.Link)

// State is the monitor's lifecycle state.
type State int

const (
	// StateUninitialized means no verified secret key has been seen yet.
	StateUninitialized State = iota
	// StateKeyed means the secret key is cached and contacts are watched.
	StateKeyed
	// StateClosed means Close has been called.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateKeyed:
		return "keyed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the monitor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// Monitor watches one workspace.
type Monitor struct {
	repo      Repo
	crypto    Crypto
	register  RegisterFunc
	logger    *slog.Logger
	workspace link.Link

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	secretKey  keyring.EncodedSecretKey // write-once
	selfURL    string
	publicKeys map[string]keyring.EncodedPublicKey // write-once per contact
	handles    map[string]*docstore.Handle         // workspace and contacts
	contacts   []link.Link
	closed     bool
}

// New starts monitoring workspace. Invitations found are passed to register.
func New(repo Repo, crypto Crypto, workspace link.Link, register RegisterFunc, opts ...Option) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		repo:       repo,
		crypto:     crypto,
		register:   register,
		logger:     slog.Default(),
		workspace:  workspace.Bare(),
		ctx:        ctx,
		cancel:     cancel,
		publicKeys: make(map[string]keyring.EncodedPublicKey),
		handles:    make(map[string]*docstore.Handle),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("workspace_url", m.workspace.String())

	handle := repo.Open(m.workspace)
	m.handles[m.workspace.ID] = handle
	handle.Subscribe(m.onWorkspace)
	return m
}

// Workspace returns the monitored workspace.
func (m *Monitor) Workspace() link.Link {
	return m.workspace
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return StateClosed
	case m.secretKey != "":
		return StateKeyed
	default:
		return StateUninitialized
	}
}

// Contacts returns the watched contacts in discovery order.
func (m *Monitor) Contacts() []link.Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.contacts)
}

func (m *Monitor) onWorkspace(v content.Value) {
	ws, ok := v.(content.Map)
	if !ok {
		return
	}

	m.mu.Lock()
	keyed := m.secretKey != ""
	m.mu.Unlock()

	if !keyed {
		signed, ok := keyring.SignedMessageFrom(ws["secretKey"])
		if !ok {
			m.logger.Debug("workspace has no secret key yet")
			return
		}
		secret, err := m.crypto.VerifiedMessage(m.ctx, m.workspace, signed)
		if err != nil {
			m.logger.Debug("workspace secret key rejected", "error", err)
			return
		}
		m.mu.Lock()
		if m.secretKey == "" {
			m.secretKey = keyring.EncodedSecretKey(secret)
		}
		m.mu.Unlock()
		m.logger.Info("workspace keyed")
	}

	// The first non-empty self id sticks, like the secret key.
	if self, _ := ws.String("selfId"); self != "" {
		m.mu.Lock()
		if m.selfURL == "" {
			m.selfURL = self
		}
		m.mu.Unlock()
	}

	ids, _ := ws.List("contactIds")
	for _, id := range ids.Strings() {
		contact, err := link.Parse(id)
		if err != nil || contact.Kind == link.KindFile {
			m.logger.Debug("ignoring malformed contact id", "contact", id)
			continue
		}
		m.watchContact(contact.Bare())
	}
}

func (m *Monitor) watchContact(contact link.Link) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, ok := m.handles[contact.ID]; ok {
		m.mu.Unlock()
		return
	}
	handle := m.repo.Open(contact)
	m.handles[contact.ID] = handle
	m.contacts = append(m.contacts, contact)
	m.mu.Unlock()

	m.logger.Debug("watching contact", "contact_url", contact.String())
	handle.Subscribe(func(v content.Value) {
		m.onContact(contact, v)
	})
}

func (m *Monitor) onContact(contact link.Link, v content.Value) {
	doc, ok := v.(content.Map)
	if !ok {
		return
	}
	invites, ok := doc.Map("invites")
	if !ok {
		return
	}
	publicKey, ok := m.publicKey(contact, doc)
	if !ok {
		return
	}

	m.mu.Lock()
	self, secret := m.selfURL, m.secretKey
	m.mu.Unlock()

	boxes, _ := invites.List(self)
	for i, box := range boxes.Strings() {
		plain, err := m.crypto.OpenBox(m.ctx, publicKey, secret, keyring.Box(box))
		if err != nil {
			m.logger.Debug("skipping invite that did not open",
				"contact_url", contact.String(), "index", i, "error", err)
			continue
		}
		invited, err := link.Parse(plain)
		if err != nil || invited.Kind == link.KindFile {
			m.logger.Debug("skipping invite with malformed payload",
				"contact_url", contact.String(), "index", i)
			continue
		}

		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		m.logger.Info("invite received",
			"contact_url", contact.String(), "invited_url", invited.Bare().String())
		m.register(invited.Bare())
	}
}

// publicKey returns the contact's verified encryption key, verifying it on
// first sight.
func (m *Monitor) publicKey(contact link.Link, doc content.Map) (keyring.EncodedPublicKey, bool) {
	m.mu.Lock()
	cached, ok := m.publicKeys[contact.ID]
	m.mu.Unlock()
	if ok {
		return cached, true
	}

	signed, ok := keyring.SignedMessageFrom(doc["encryptionKey"])
	if !ok {
		return "", false
	}
	key, err := m.crypto.VerifiedMessage(m.ctx, contact, signed)
	if err != nil {
		m.logger.Debug("contact encryption key rejected", "contact_url", contact.String(), "error", err)
		return "", false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.publicKeys[contact.ID]; ok {
		return existing, true
	}
	m.publicKeys[contact.ID] = keyring.EncodedPublicKey(key)
	return keyring.EncodedPublicKey(key), true
}

// Close releases the workspace and every contact handle. Safe to call more
// than once.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	handles := make([]*docstore.Handle, 0, len(m.handles))
	for _, h := range m.handles {
		handles = append(handles, h)
	}
	m.handles = make(map[string]*docstore.Handle)
	m.contacts = nil
	m.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	m.cancel()
}
