package docstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/link"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
		"user_version": "1",
	}
	for name, want := range checks {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	doc, err := s1.Create(ctx, content.Map{"name": content.String("x")})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.Doc(ctx, doc)
	if err != nil {
		t.Fatalf("Doc() failed: %v", err)
	}
	if got["name"] != content.String("x") {
		t.Errorf("name = %v, want x", got["name"])
	}
}

func TestCreate_StoresSigningKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	doc, err := s.Create(ctx, nil)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if !link.IsDocumentURL(doc.String()) {
		t.Errorf("Create() returned %q, not a document URL", doc)
	}

	key, err := s.SigningKey(ctx, doc)
	if err != nil {
		t.Fatalf("SigningKey() failed: %v", err)
	}
	if len(key) != 64 {
		t.Errorf("key length = %d, want 64", len(key))
	}

	_, err = s.SigningKey(ctx, link.Document("unknown"))
	if !errors.Is(err, ErrNoSigningKey) {
		t.Errorf("SigningKey(unknown) error = %v, want ErrNoSigningKey", err)
	}
}

func TestChange_AppliesMutation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	doc, err := s.Create(ctx, content.Map{"registry": content.Map{}})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	err = s.Change(ctx, doc, func(m content.Map) error {
		reg, _ := m.Map("registry")
		reg["k"] = content.String("v")
		return nil
	})
	if err != nil {
		t.Fatalf("Change() failed: %v", err)
	}

	got, err := s.Doc(ctx, doc)
	if err != nil {
		t.Fatalf("Doc() failed: %v", err)
	}
	reg, _ := got.Map("registry")
	if reg["k"] != content.String("v") {
		t.Errorf("registry = %v", reg)
	}

	var changes int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM changes WHERE doc_id = ?", doc.ID).Scan(&changes); err != nil {
		t.Fatal(err)
	}
	if changes != 2 {
		t.Errorf("changes = %d, want 2", changes)
	}
}

func TestChange_NoopIsNotRecorded(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	doc, _ := s.Create(ctx, content.Map{"a": content.Int(1)})
	if err := s.Change(ctx, doc, func(m content.Map) error { m["a"] = content.Int(1); return nil }); err != nil {
		t.Fatalf("Change() failed: %v", err)
	}

	var seq int
	if err := s.db.QueryRow("SELECT seq FROM documents WHERE id = ?", doc.ID).Scan(&seq); err != nil {
		t.Fatal(err)
	}
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}
}

func TestChange_ErrorRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	doc, _ := s.Create(ctx, content.Map{"a": content.Int(1)})
	boom := errors.New("boom")
	err := s.Change(ctx, doc, func(m content.Map) error {
		m["a"] = content.Int(2)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Change() error = %v, want boom", err)
	}

	got, _ := s.Doc(ctx, doc)
	if got["a"] != content.Int(1) {
		t.Errorf("a = %v, want 1", got["a"])
	}
}

func TestChange_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	noop := func(content.Map) error { return nil }

	if err := s.Change(ctx, link.Document("missing"), noop); !errors.Is(err, ErrNotFound) {
		t.Errorf("Change(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Change(ctx, link.File("f"), noop); !errors.Is(err, ErrNotDocument) {
		t.Errorf("Change(file) error = %v, want ErrNotDocument", err)
	}
}

func TestPut_CreatesAndUpdates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := link.Document("remote")

	if err := s.Put(ctx, doc, content.Map{"v": content.Int(1)}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Put(ctx, doc, content.Map{"v": content.Int(2)}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := s.Doc(ctx, doc)
	if err != nil {
		t.Fatalf("Doc() failed: %v", err)
	}
	if got["v"] != content.Int(2) {
		t.Errorf("v = %v, want 2", got["v"])
	}

	docs, err := s.Documents(ctx)
	if err != nil {
		t.Fatalf("Documents() failed: %v", err)
	}
	if len(docs) != 1 || docs[0] != doc {
		t.Errorf("Documents() = %v", docs)
	}
}

func TestDoc_PreservesText(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	doc, _ := s.Create(ctx, content.Map{"body": content.Text("hypermerge:/x")})
	got, err := s.Doc(ctx, doc)
	if err != nil {
		t.Fatalf("Doc() failed: %v", err)
	}
	if got["body"] != content.Text("hypermerge:/x") {
		t.Errorf("body = %#v", got["body"])
	}
}

func TestDoc_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Doc(context.Background(), link.Document("nope"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Doc() error = %v, want ErrNotFound", err)
	}
}

func TestMessage_NotifiesListeners(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := link.Document("d")

	var got []content.Value
	s.OnMessage(func(d link.Link, payload content.Value) {
		if d == doc {
			got = append(got, payload)
		}
	})

	if err := s.Message(ctx, doc, content.Map{"contact": content.String("x")}); err != nil {
		t.Fatalf("Message() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("listener calls = %d, want 1", len(got))
	}

	n, err := s.MessageCount(ctx, doc)
	if err != nil {
		t.Fatalf("MessageCount() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("MessageCount() = %d, want 1", n)
	}
}
