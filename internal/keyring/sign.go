package keyring

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	"github.com/roach88/storagepeer/internal/content"
)

// SignedMessage is a message plus a base58 ed25519 signature made by the
// document that publishes it.
type SignedMessage struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// ToContent renders m for storage inside a document.
func (m SignedMessage) ToContent() content.Map {
	return content.Map{
		"message":   content.String(m.Message),
		"signature": content.String(m.Signature),
	}
}

// SignedMessageFrom reads a SignedMessage out of document content.
func SignedMessageFrom(v content.Value) (SignedMessage, bool) {
	m, ok := v.(content.Map)
	if !ok {
		return SignedMessage{}, false
	}
	msg, ok1 := m.String("message")
	sig, ok2 := m.String("signature")
	if !ok1 || !ok2 {
		return SignedMessage{}, false
	}
	return SignedMessage{Message: msg, Signature: sig}, true
}

func sign(secret ed25519.PrivateKey, message string) SignedMessage {
	sig := ed25519.Sign(secret, []byte(message))
	return SignedMessage{Message: message, Signature: base58.Encode(sig)}
}

func verify(authorityID string, m SignedMessage) (string, error) {
	pub, err := documentPublicKey(authorityID)
	if err != nil {
		return "", err
	}
	sig, err := base58.Decode(m.Signature)
	if err != nil {
		return "", newError(ErrCodeEncoding, err, "decode signature")
	}
	if !ed25519.Verify(pub, []byte(m.Message), sig) {
		return "", newError(ErrCodeVerification, nil, "signature does not match %s", authorityID)
	}
	return m.Message, nil
}
