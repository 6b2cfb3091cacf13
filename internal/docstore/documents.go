package docstore

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/keyring"
	"github.com/roach88/storagepeer/internal/link"
)

// Create stores a new document with initial content and returns its link.
// The document's signing key is kept alongside it.
func (s *Store) Create(ctx context.Context, initial content.Map) (link.Link, error) {
	if initial == nil {
		initial = content.Map{}
	}
	id, secret, err := keyring.NewDocumentKey()
	if err != nil {
		return link.Link{}, fmt.Errorf("create document: %w", err)
	}
	doc := link.Document(id)

	body, hash, err := encode(initial)
	if err != nil {
		return link.Link{}, fmt.Errorf("create document: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, content, seq, hash) VALUES (?, ?, 1, ?)`,
			id, body, hash); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO signing_keys (doc_id, secret_key) VALUES (?, ?)`,
			id, []byte(secret)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO changes (doc_id, seq, hash) VALUES (?, 1, ?)`, id, hash)
		return err
	})
	if err != nil {
		return link.Link{}, fmt.Errorf("create document: %w", err)
	}

	s.logger.Debug("document created", "doc_url", doc.String())
	return doc, s.Sync(ctx)
}

// Change applies fn to a copy of doc's content and commits the result.
// A change that leaves the content identical is not recorded. fn runs
// inside the write transaction and must not call back into the Store.
func (s *Store) Change(ctx context.Context, doc link.Link, fn func(content.Map) error) error {
	if doc.Kind != link.KindDocument && doc.Kind != link.KindWrapped {
		return fmt.Errorf("change %s: %w", doc, ErrNotDocument)
	}
	doc = doc.Bare()

	changed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, seq, oldHash, err := loadTx(ctx, tx, doc.ID)
		if err != nil {
			return err
		}
		next := content.Clone(current).(content.Map)
		if err := fn(next); err != nil {
			return err
		}
		body, hash, err := encode(next)
		if err != nil {
			return err
		}
		if hash == oldHash {
			return nil
		}
		changed = true
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET content = ?, seq = ?, hash = ? WHERE id = ?`,
			body, seq+1, hash, doc.ID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO changes (doc_id, seq, hash) VALUES (?, ?, ?)`, doc.ID, seq+1, hash)
		return err
	})
	if err != nil {
		return fmt.Errorf("change %s: %w", doc, err)
	}
	if !changed {
		return nil
	}
	return s.Sync(ctx)
}

// Put stores content received for doc from elsewhere, creating the
// document if it is new. No signing key is recorded.
func (s *Store) Put(ctx context.Context, doc link.Link, body content.Map) error {
	if doc.Kind != link.KindDocument && doc.Kind != link.KindWrapped {
		return fmt.Errorf("put %s: %w", doc, ErrNotDocument)
	}
	doc = doc.Bare()

	encoded, hash, err := encode(body)
	if err != nil {
		return fmt.Errorf("put %s: %w", doc, err)
	}

	changed := false
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var seq int64
		var oldHash string
		err := tx.QueryRowContext(ctx,
			`SELECT seq, hash FROM documents WHERE id = ?`, doc.ID).Scan(&seq, &oldHash)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			seq = 0
		case err != nil:
			return err
		case oldHash == hash:
			return nil
		}
		changed = true
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, content, seq, hash) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET content = excluded.content, seq = excluded.seq, hash = excluded.hash
		`, doc.ID, encoded, seq+1, hash); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO changes (doc_id, seq, hash) VALUES (?, ?, ?)`, doc.ID, seq+1, hash)
		return err
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", doc, err)
	}
	if !changed {
		return nil
	}
	return s.Sync(ctx)
}

// Doc returns the current content of doc.
func (s *Store) Doc(ctx context.Context, doc link.Link) (content.Map, error) {
	m, _, err := s.Snapshot(ctx, doc)
	return m, err
}

// Snapshot implements Source.
func (s *Store) Snapshot(ctx context.Context, doc link.Link) (content.Map, int64, error) {
	var body string
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT content, seq FROM documents WHERE id = ?`, doc.Bare().ID).Scan(&body, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%s: %w", doc, ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", doc, err)
	}
	m, err := decode(body)
	if err != nil {
		return nil, 0, err
	}
	return m, seq, nil
}

// SigningKey implements keyring.SigningKeys for documents created here.
func (s *Store) SigningKey(ctx context.Context, doc link.Link) (ed25519.PrivateKey, error) {
	var key []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT secret_key FROM signing_keys WHERE doc_id = ?`, doc.Bare().ID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", doc, ErrNoSigningKey)
	}
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key for %s has %d bytes", doc, len(key))
	}
	return ed25519.PrivateKey(key), nil
}

// Documents lists every stored document, ordered by id.
func (s *Store) Documents(ctx context.Context) ([]link.Link, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id ASC COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []link.Link
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		out = append(out, link.Document(id))
	}
	return out, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func loadTx(ctx context.Context, tx *sql.Tx, id string) (content.Map, int64, string, error) {
	var body, hash string
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT content, seq, hash FROM documents WHERE id = ?`, id).Scan(&body, &seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, "", ErrNotFound
	}
	if err != nil {
		return nil, 0, "", err
	}
	m, err := decode(body)
	if err != nil {
		return nil, 0, "", err
	}
	return m, seq, hash, nil
}

func encode(m content.Map) (body string, hash string, err error) {
	b, err := content.Marshal(m)
	if err != nil {
		return "", "", err
	}
	h, err := content.Hash(m)
	if err != nil {
		return "", "", err
	}
	return string(b), h, nil
}

func decode(body string) (content.Map, error) {
	v, err := content.Unmarshal([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	m, ok := v.(content.Map)
	if !ok {
		return nil, fmt.Errorf("decode document: expected object, got %T", v)
	}
	return m, nil
}
