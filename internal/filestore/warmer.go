package filestore

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/roach88/storagepeer/internal/link"
)

// NamedCAS pairs a remote CAS with a name for logging.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// WarmerConfig bounds remote fetching.
type WarmerConfig struct {
	// Concurrency limits simultaneous fetches. Zero means 4.
	Concurrency int64
	// Rate limits remote requests per second. Zero means unlimited.
	Rate float64
	// Burst is the limiter's bucket size. Zero means 1.
	Burst int
}

// Warmer makes sure linked files are present locally, pulling missing
// ones from remote peers in order.
type Warmer struct {
	local   CAS
	remotes []NamedCAS
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewWarmer returns a Warmer that stores into local.
func NewWarmer(local CAS, remotes []NamedCAS, cfg WarmerConfig, logger *slog.Logger) *Warmer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Warmer{
		local:   local,
		remotes: remotes,
		sem:     semaphore.NewWeighted(cfg.Concurrency),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
	}
}

// Fetch ensures the file behind l is stored locally. It returns
// ErrNotFound when no remote has it.
func (w *Warmer) Fetch(ctx context.Context, l link.Link) error {
	id, err := CIDOf(l)
	if err != nil {
		return err
	}
	if w.local.Has(ctx, id) {
		return nil
	}

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer w.sem.Release(1)

	// Another fetch may have finished while we waited.
	if w.local.Has(ctx, id) {
		return nil
	}

	for _, remote := range w.remotes {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		data, err := remote.CAS.Get(ctx, id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			w.logger.Debug("remote fetch failed", "file_url", l.String(), "remote", remote.Name, "error", err)
			continue
		}
		if err := verify(id, data); err != nil {
			w.logger.Warn("remote returned wrong bytes", "file_url", l.String(), "remote", remote.Name)
			continue
		}
		if _, err := w.local.Put(ctx, data); err != nil {
			return fmt.Errorf("store %s: %w", l, err)
		}
		w.logger.Debug("file fetched", "file_url", l.String(), "remote", remote.Name, "bytes", len(data))
		return nil
	}
	return fmt.Errorf("%s: %w", l, ErrNotFound)
}
