package filestore

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
)

// Multi reads from each adapter in order and writes to the first.
// Callers supply a fixed order.
type Multi struct {
	Adapters []CAS
}

var _ CAS = Multi{}

func (m Multi) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, errors.New("filestore: Multi has no adapters")
	}
	return m.Adapters[0].Put(ctx, data)
}

func (m Multi) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	for _, cas := range m.Adapters {
		b, err := cas.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m Multi) Has(ctx context.Context, id cid.Cid) bool {
	for _, cas := range m.Adapters {
		if cas.Has(ctx, id) {
			return true
		}
	}
	return false
}
