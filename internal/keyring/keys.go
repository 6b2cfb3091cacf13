package keyring

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/nacl/box"
)

// EncodedPublicKey is a base58 curve25519 public key.
type EncodedPublicKey string

// EncodedSecretKey is a base58 curve25519 secret key.
type EncodedSecretKey string

// KeyPair is an encryption key pair. It is stored on disk as JSON.
type KeyPair struct {
	PublicKey EncodedPublicKey `json:"publicKey"`
	SecretKey EncodedSecretKey `json:"secretKey"`
}

// GenerateKeyPair creates a fresh encryption key pair.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		PublicKey: EncodedPublicKey(base58.Encode(pub[:])),
		SecretKey: EncodedSecretKey(base58.Encode(priv[:])),
	}, nil
}

// NewDocumentKey creates a signing key for a new document. The document id
// is the base58 public half, so anyone holding the id can verify what the
// document signs.
func NewDocumentKey() (id string, secret ed25519.PrivateKey, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, err
	}
	return base58.Encode(pub), priv, nil
}

func decodeKey32(s string, what string) (*[32]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, newError(ErrCodeEncoding, err, "decode %s", what)
	}
	if len(b) != 32 {
		return nil, newError(ErrCodeEncoding, nil, "%s has %d bytes, want 32", what, len(b))
	}
	var k [32]byte
	copy(k[:], b)
	return &k, nil
}

func documentPublicKey(id string) (ed25519.PublicKey, error) {
	b, err := base58.Decode(id)
	if err != nil {
		return nil, newError(ErrCodeEncoding, err, "decode document id %q", id)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, newError(ErrCodeEncoding, nil, "document id %q is not a verification key", id)
	}
	return ed25519.PublicKey(b), nil
}
