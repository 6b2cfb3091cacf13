// Package filestore keeps the immutable files documents link to.
//
// Files are content addressed: a file's id is the CIDv1 (raw codec,
// sha2-256) of its bytes, and its link is hyperfile:/<cid>.
package filestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/roach88/storagepeer/internal/link"
)

// CAS is a content-addressable store.
//
// Contract:
//   - Put is idempotent and returns the CID derived from the bytes.
//   - Stored objects are immutable.
//   - Get returns ErrNotFound when the CID is absent.
type CAS interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) bool
}

var (
	ErrNotFound    = errors.New("filestore: not found")
	ErrInvalidCID  = errors.New("filestore: invalid cid")
	ErrCIDMismatch = errors.New("filestore: cid mismatch")
	ErrImmutable   = errors.New("filestore: immutable object mismatch")
)

// IsNotFound reports whether err means the object is absent.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Sum returns the CIDv1 (raw + sha2-256) of data.
func Sum(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// Link returns the file link for id.
func Link(id cid.Cid) link.Link {
	return link.File(id.String())
}

// CIDOf decodes the CID behind a file link.
func CIDOf(l link.Link) (cid.Cid, error) {
	if l.Kind != link.KindFile {
		return cid.Undef, fmt.Errorf("%w: %s is not a file link", ErrInvalidCID, l)
	}
	id, err := cid.Decode(l.ID)
	if err != nil || !id.Defined() {
		return cid.Undef, fmt.Errorf("%w: %q", ErrInvalidCID, l.ID)
	}
	return id, nil
}

// verify checks that data hashes to id.
func verify(id cid.Cid, data []byte) error {
	got, err := Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrCIDMismatch
	}
	return nil
}
