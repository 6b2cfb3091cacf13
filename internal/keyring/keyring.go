// Package keyring implements the cryptographic collaborator: document
// self-signatures and NaCl boxes.
//
// A document's id is the base58 ed25519 public key it was created with,
// so any signature made "by" a document can be checked with nothing but
// its link. Signing needs the secret half, which SigningKeys supplies.
package keyring

import (
	"context"
	"crypto/ed25519"

	"github.com/roach88/storagepeer/internal/link"
)

// SigningKeys looks up the secret signing key of a locally created document.
type SigningKeys interface {
	SigningKey(ctx context.Context, doc link.Link) (ed25519.PrivateKey, error)
}

// Keyring performs signing, verification and box operations.
// The zero value can verify and box but not sign.
type Keyring struct {
	keys SigningKeys
}

// New returns a Keyring that signs with keys.
func New(keys SigningKeys) *Keyring {
	return &Keyring{keys: keys}
}

// Sign signs message with authority's document key.
func (k *Keyring) Sign(ctx context.Context, authority link.Link, message string) (SignedMessage, error) {
	if k.keys == nil {
		return SignedMessage{}, newError(ErrCodeNoSigningKey, nil, "no signing keys configured")
	}
	secret, err := k.keys.SigningKey(ctx, authority.Bare())
	if err != nil {
		return SignedMessage{}, newError(ErrCodeNoSigningKey, err, "signing key for %s", authority)
	}
	return sign(secret, message), nil
}

// VerifiedMessage returns m's message if it was signed by authority.
func (k *Keyring) VerifiedMessage(ctx context.Context, authority link.Link, m SignedMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return verify(authority.ID, m)
}

// Box encrypts message from sender to recipient.
func (k *Keyring) Box(ctx context.Context, senderSecret EncodedSecretKey, recipientPublic EncodedPublicKey, message string) (Box, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return boxMessage(senderSecret, recipientPublic, message)
}

// OpenBox decrypts a box, authenticating its sender.
func (k *Keyring) OpenBox(ctx context.Context, senderPublic EncodedPublicKey, recipientSecret EncodedSecretKey, b Box) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return openBox(senderPublic, recipientSecret, b)
}

// SealedBox encrypts message to recipient without identifying the sender.
func (k *Keyring) SealedBox(ctx context.Context, recipientPublic EncodedPublicKey, message string) (SealedBox, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return sealMessage(recipientPublic, message)
}

// OpenSealedBox decrypts a sealed box addressed to kp.
func (k *Keyring) OpenSealedBox(ctx context.Context, kp KeyPair, sealed SealedBox) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return openSealed(kp, sealed)
}

// StaticKeys is an in-memory SigningKeys.
type StaticKeys map[string]ed25519.PrivateKey

// SigningKey implements SigningKeys.
func (s StaticKeys) SigningKey(_ context.Context, doc link.Link) (ed25519.PrivateKey, error) {
	key, ok := s[doc.ID]
	if !ok {
		return nil, newError(ErrCodeNoSigningKey, nil, "no key for %s", doc)
	}
	return key, nil
}
