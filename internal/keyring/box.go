package keyring

import (
	"crypto/rand"
	"io"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/nacl/box"
)

const nonceSize = 24

// Box is an authenticated public-key ciphertext: base58(nonce || sealed).
type Box string

// SealedBox is an anonymous-sender ciphertext, base58 encoded.
type SealedBox string

func boxMessage(senderSecret EncodedSecretKey, recipientPublic EncodedPublicKey, message string) (Box, error) {
	priv, err := decodeKey32(string(senderSecret), "sender secret key")
	if err != nil {
		return "", err
	}
	pub, err := decodeKey32(string(recipientPublic), "recipient public key")
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := box.Seal(nonce[:], []byte(message), &nonce, pub, priv)
	return Box(base58.Encode(out)), nil
}

func openBox(senderPublic EncodedPublicKey, recipientSecret EncodedSecretKey, b Box) (string, error) {
	pub, err := decodeKey32(string(senderPublic), "sender public key")
	if err != nil {
		return "", err
	}
	priv, err := decodeKey32(string(recipientSecret), "recipient secret key")
	if err != nil {
		return "", err
	}
	raw, err := base58.Decode(string(b))
	if err != nil {
		return "", newError(ErrCodeEncoding, err, "decode box")
	}
	if len(raw) < nonceSize+box.Overhead {
		return "", newError(ErrCodeDecryption, nil, "box too short (%d bytes)", len(raw))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := box.Open(nil, raw[nonceSize:], &nonce, pub, priv)
	if !ok {
		return "", newError(ErrCodeDecryption, nil, "box did not open")
	}
	return string(plain), nil
}

func sealMessage(recipientPublic EncodedPublicKey, message string) (SealedBox, error) {
	pub, err := decodeKey32(string(recipientPublic), "recipient public key")
	if err != nil {
		return "", err
	}
	out, err := box.SealAnonymous(nil, []byte(message), pub, rand.Reader)
	if err != nil {
		return "", err
	}
	return SealedBox(base58.Encode(out)), nil
}

func openSealed(kp KeyPair, sealed SealedBox) (string, error) {
	pub, err := decodeKey32(string(kp.PublicKey), "public key")
	if err != nil {
		return "", err
	}
	priv, err := decodeKey32(string(kp.SecretKey), "secret key")
	if err != nil {
		return "", err
	}
	raw, err := base58.Decode(string(sealed))
	if err != nil {
		return "", newError(ErrCodeEncoding, err, "decode sealed box")
	}
	plain, ok := box.OpenAnonymous(nil, raw, pub, priv)
	if !ok {
		return "", newError(ErrCodeDecryption, nil, "sealed box did not open")
	}
	return string(plain), nil
}
