package invite

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/docstore/docstoretest"
	"github.com/roach88/storagepeer/internal/keyring"
	"github.com/roach88/storagepeer/internal/link"
)

type fixture struct {
	t        *testing.T
	repo     *docstoretest.Repo
	keys     *keyring.Keyring
	wsKeys   keyring.KeyPair
	selfURL  link.Link
	mu       sync.Mutex
	received []link.Link
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := docstoretest.New()
	kp, err := keyring.GenerateKeyPair()
	require.NoError(t, err)
	return &fixture{
		t:       t,
		repo:    repo,
		keys:    keyring.New(repo),
		wsKeys:  kp,
		selfURL: repo.Create(content.Map{"name": content.String("me")}),
	}
}

func (f *fixture) register(l link.Link) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, l)
}

func (f *fixture) invites() []link.Link {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]link.Link(nil), f.received...)
}

func (f *fixture) signed(authority link.Link, msg string) content.Map {
	f.t.Helper()
	sm, err := f.keys.Sign(context.Background(), authority, msg)
	require.NoError(f.t, err)
	return sm.ToContent()
}

// keyWorkspace gives ws a verified secret key and the given contacts.
func (f *fixture) keyWorkspace(ws link.Link, contacts ...link.Link) {
	ids := content.List{}
	for _, c := range contacts {
		ids = append(ids, content.String(c.String()))
	}
	secret := f.signed(ws, string(f.wsKeys.SecretKey))
	f.repo.Change(ws, func(m content.Map) {
		m["selfId"] = content.String(f.selfURL.String())
		m["contactIds"] = ids
		m["secretKey"] = secret
	})
}

// newContact creates a contact with a signed encryption key.
func (f *fixture) newContact() (link.Link, keyring.KeyPair) {
	f.t.Helper()
	kp, err := keyring.GenerateKeyPair()
	require.NoError(f.t, err)
	contact := f.repo.Create(content.Map{"name": content.String("friend")})
	key := f.signed(contact, string(kp.PublicKey))
	f.repo.Change(contact, func(m content.Map) {
		m["encryptionKey"] = key
	})
	return contact, kp
}

func (f *fixture) box(sender keyring.KeyPair, msg string) content.String {
	f.t.Helper()
	b, err := f.keys.Box(context.Background(), sender.SecretKey, f.wsKeys.PublicKey, msg)
	require.NoError(f.t, err)
	return content.String(b)
}

func (f *fixture) invite(contact link.Link, boxes ...content.Value) {
	f.repo.Change(contact, func(m content.Map) {
		m["invites"] = content.Map{f.selfURL.String(): content.List(boxes)}
	})
}

func TestMonitor_DeliversInvite(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	contact, contactKeys := f.newContact()
	invited := f.repo.Create(content.Map{"name": content.String("shared")})

	f.keyWorkspace(ws, contact)
	f.invite(contact, f.box(contactKeys, invited.String()))

	m := New(f.repo, f.keys, ws, f.register)
	defer m.Close()
	f.repo.Drain()

	assert.Equal(t, StateKeyed, m.State())
	assert.Equal(t, []link.Link{contact}, m.Contacts())
	assert.Equal(t, []link.Link{invited}, f.invites())
}

func TestMonitor_UnwrapsWrappedInvite(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	contact, contactKeys := f.newContact()
	invited := f.repo.Create(content.Map{})
	wrapped, err := link.Wrap("workspace", invited.String())
	require.NoError(t, err)

	f.keyWorkspace(ws, contact)
	f.invite(contact, f.box(contactKeys, wrapped))

	m := New(f.repo, f.keys, ws, f.register)
	defer m.Close()
	f.repo.Drain()

	assert.Equal(t, []link.Link{invited}, f.invites())
}

func TestMonitor_WaitsForSecretKey(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	contact, contactKeys := f.newContact()
	invited := f.repo.Create(content.Map{})
	f.invite(contact, f.box(contactKeys, invited.String()))

	m := New(f.repo, f.keys, ws, f.register)
	defer m.Close()
	f.repo.Drain()

	assert.Equal(t, StateUninitialized, m.State())
	assert.Empty(t, m.Contacts())
	assert.Empty(t, f.invites())

	f.keyWorkspace(ws, contact)
	f.repo.Drain()

	assert.Equal(t, StateKeyed, m.State())
	assert.Equal(t, []link.Link{invited}, f.invites())
}

func TestMonitor_RejectsForgedSecretKey(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	other := f.repo.Create(content.Map{})
	forged := f.signed(other, string(f.wsKeys.SecretKey))
	f.repo.Change(ws, func(m content.Map) {
		m["secretKey"] = forged
	})

	m := New(f.repo, f.keys, ws, f.register)
	defer m.Close()
	f.repo.Drain()

	assert.Equal(t, StateUninitialized, m.State())
}

func TestMonitor_SkipsBadBoxes(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	contact, contactKeys := f.newContact()
	stranger, err := keyring.GenerateKeyPair()
	require.NoError(t, err)
	good := f.repo.Create(content.Map{})

	f.keyWorkspace(ws, contact)
	f.invite(contact,
		content.String("not-a-box"),
		f.box(stranger, f.repo.Create(content.Map{}).String()),
		f.box(contactKeys, "hyperfile:/notadoc"),
		f.box(contactKeys, "garbage"),
		content.Int(7),
		f.box(contactKeys, good.String()),
	)

	m := New(f.repo, f.keys, ws, f.register)
	defer m.Close()
	f.repo.Drain()

	assert.Equal(t, []link.Link{good}, f.invites())
}

func TestMonitor_IgnoresInvitesForOthers(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	contact, contactKeys := f.newContact()
	box := f.box(contactKeys, f.repo.Create(content.Map{}).String())

	f.keyWorkspace(ws, contact)
	f.repo.Change(contact, func(m content.Map) {
		m["invites"] = content.Map{"hypermerge:/someoneElse": content.List{box}}
	})

	m := New(f.repo, f.keys, ws, f.register)
	defer m.Close()
	f.repo.Drain()

	assert.Empty(t, f.invites())
}

func TestMonitor_ContactWithoutVerifiedKey(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	impostor := f.repo.Create(content.Map{})
	kp, err := keyring.GenerateKeyPair()
	require.NoError(t, err)

	// Encryption key signed by a different document.
	other := f.repo.Create(content.Map{})
	key := f.signed(other, string(kp.PublicKey))
	f.repo.Change(impostor, func(m content.Map) {
		m["encryptionKey"] = key
	})
	f.keyWorkspace(ws, impostor)
	f.invite(impostor, f.box(kp, f.repo.Create(content.Map{}).String()))

	m := New(f.repo, f.keys, ws, f.register)
	defer m.Close()
	f.repo.Drain()

	assert.Equal(t, []link.Link{impostor}, m.Contacts())
	assert.Empty(t, f.invites())
}

func TestMonitor_ContactsOnlyGrow(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	a, _ := f.newContact()
	b, _ := f.newContact()

	f.keyWorkspace(ws, a)
	m := New(f.repo, f.keys, ws, f.register)
	defer m.Close()
	f.repo.Drain()
	require.Equal(t, []link.Link{a}, m.Contacts())

	f.keyWorkspace(ws, b, a)
	f.repo.Drain()
	assert.Equal(t, []link.Link{a, b}, m.Contacts())
	assert.Equal(t, 1, f.repo.OpenCount(a))

	f.keyWorkspace(ws)
	f.repo.Drain()
	assert.Equal(t, []link.Link{a, b}, m.Contacts())
}

func TestMonitor_NewInvitesOnContactUpdate(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	contact, contactKeys := f.newContact()
	first := f.repo.Create(content.Map{})
	second := f.repo.Create(content.Map{})

	f.keyWorkspace(ws, contact)
	m := New(f.repo, f.keys, ws, f.register)
	defer m.Close()
	f.repo.Drain()
	assert.Empty(t, f.invites())

	f.invite(contact, f.box(contactKeys, first.String()))
	f.repo.Drain()
	f.invite(contact, f.box(contactKeys, first.String()), f.box(contactKeys, second.String()))
	f.repo.Drain()

	// Each update reports every invite it holds; deduplication belongs to
	// the receiver.
	assert.Equal(t, []link.Link{first, first, second}, f.invites())
}

func TestMonitor_KeepsSelfIDWhenUpdateDropsIt(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	contact, contactKeys := f.newContact()
	invited := f.repo.Create(content.Map{})

	f.keyWorkspace(ws, contact)
	m := New(f.repo, f.keys, ws, f.register)
	defer m.Close()
	f.repo.Drain()

	f.repo.Change(ws, func(m content.Map) { delete(m, "selfId") })
	f.repo.Drain()
	f.repo.Change(ws, func(m content.Map) { m["selfId"] = content.String("hypermerge:/someoneelse") })
	f.repo.Drain()

	f.invite(contact, f.box(contactKeys, invited.String()))
	f.repo.Drain()

	assert.Equal(t, []link.Link{invited}, f.invites())
}

func TestMonitor_CloseReleasesHandles(t *testing.T) {
	f := newFixture(t)
	ws := f.repo.Create(content.Map{})
	a, _ := f.newContact()
	b, _ := f.newContact()
	f.keyWorkspace(ws, a, b)

	m := New(f.repo, f.keys, ws, f.register)
	f.repo.Drain()
	require.Equal(t, 3, f.repo.LiveHandles())

	m.Close()
	m.Close()
	assert.Equal(t, 0, f.repo.LiveHandles())
	assert.Equal(t, StateClosed, m.State())

	// Updates after close are not delivered.
	c, kp := f.newContact()
	f.invite(a, f.box(kp, c.String()))
	f.repo.Drain()
	assert.Empty(t, f.invites())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "keyed", StateKeyed.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(9).String())
}
