package registry

import (
	"context"
	"fmt"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/keyring"
	"github.com/roach88/storagepeer/internal/link"
)

// DocumentWriter creates and mutates documents.
type DocumentWriter interface {
	Create(ctx context.Context, initial content.Map) (link.Link, error)
	Change(ctx context.Context, doc link.Link, fn func(content.Map) error) error
}

// Signer signs messages on behalf of a document.
type Signer interface {
	Sign(ctx context.Context, authority link.Link, message string) (keyring.SignedMessage, error)
}

// CreateRootDoc creates a registry document advertising publicKey.
//
// The signature needs the document's own URL, so the key and signature are
// written in a second change. Readers can briefly see the document without
// them.
func CreateRootDoc(ctx context.Context, docs DocumentWriter, signer Signer, publicKey keyring.EncodedPublicKey) (link.Link, error) {
	doc, err := docs.Create(ctx, content.Map{
		"name":     content.String("Storage Peer"),
		"icon":     content.String("cloud"),
		"registry": content.Map{},
	})
	if err != nil {
		return link.Link{}, fmt.Errorf("create registry document: %w", err)
	}

	signed, err := signer.Sign(ctx, doc, string(publicKey))
	if err != nil {
		return link.Link{}, fmt.Errorf("sign encryption key: %w", err)
	}

	err = docs.Change(ctx, doc, func(m content.Map) error {
		m["encryptionKey"] = content.String(publicKey)
		m["encryptionKeySignature"] = content.String(signed.Signature)
		return nil
	})
	if err != nil {
		return link.Link{}, fmt.Errorf("publish encryption key: %w", err)
	}
	return doc, nil
}
