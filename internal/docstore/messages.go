package docstore

import (
	"context"
	"fmt"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/link"
)

// MessageListener receives messages sent to documents.
type MessageListener func(doc link.Link, payload content.Value)

// OnMessage registers a listener for messages sent through this store.
func (s *Store) OnMessage(fn MessageListener) {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Message records payload as sent to doc's peers and notifies listeners.
func (s *Store) Message(ctx context.Context, doc link.Link, payload content.Value) error {
	b, err := content.Marshal(payload)
	if err != nil {
		return fmt.Errorf("message %s: %w", doc, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (doc_id, payload) VALUES (?, ?)`, doc.Bare().ID, string(b)); err != nil {
		return fmt.Errorf("message %s: %w", doc, err)
	}

	s.listenMu.RLock()
	listeners := append([]MessageListener(nil), s.listeners...)
	s.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(doc.Bare(), payload)
	}
	return nil
}

// MessageCount returns how many messages have been sent to doc.
func (s *Store) MessageCount(ctx context.Context, doc link.Link) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE doc_id = ?`, doc.Bare().ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
