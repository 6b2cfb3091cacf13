package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/storagepeer/internal/link"
)

// Sync publishes every change committed since the last call, whichever
// process committed it. Each changed document is published once with its
// latest content.
func (s *Store) Sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT rev, doc_id FROM changes WHERE rev > ? ORDER BY rev ASC`, s.lastRev)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	var (
		order []string
		seen  = make(map[string]bool)
		last  = s.lastRev
	)
	for rows.Next() {
		var rev int64
		var id string
		if err := rows.Scan(&rev, &id); err != nil {
			rows.Close()
			return fmt.Errorf("sync: %w", err)
		}
		last = rev
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	s.lastRev = last

	for _, id := range order {
		doc := link.Document(id)
		body, seq, err := s.Snapshot(ctx, doc)
		if err != nil {
			s.logger.Warn("changed document unreadable", "doc_url", doc.String(), "error", err)
			continue
		}
		s.hub.Publish(doc, body, seq)
	}
	return nil
}

// Poll calls Sync every interval until ctx is canceled. Sync failures are
// logged and retried on the next tick.
func (s *Store) Poll(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("poll failed", "error", err)
			}
		}
	}
}
