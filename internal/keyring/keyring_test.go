package keyring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storagepeer/internal/content"
	"github.com/roach88/storagepeer/internal/link"
)

func newDocument(t *testing.T, keys StaticKeys) link.Link {
	t.Helper()
	id, secret, err := NewDocumentKey()
	require.NoError(t, err)
	keys[id] = secret
	return link.Document(id)
}

func TestSignAndVerify(t *testing.T) {
	ctx := context.Background()
	keys := StaticKeys{}
	kr := New(keys)
	doc := newDocument(t, keys)

	signed, err := kr.Sign(ctx, doc, "public-key")
	require.NoError(t, err)
	assert.Equal(t, "public-key", signed.Message)

	// Verification needs only the document link.
	got, err := (&Keyring{}).VerifiedMessage(ctx, doc, signed)
	require.NoError(t, err)
	assert.Equal(t, "public-key", got)
}

func TestSignWrappedAuthorityUsesBareDocument(t *testing.T) {
	keys := StaticKeys{}
	doc := newDocument(t, keys)
	wrapped := link.Link{Kind: link.KindWrapped, ID: doc.ID, ContentType: "workspace"}

	signed, err := New(keys).Sign(context.Background(), wrapped, "m")
	require.NoError(t, err)

	_, err = New(nil).VerifiedMessage(context.Background(), doc, signed)
	assert.NoError(t, err)
}

func TestVerifyRejectsOtherAuthority(t *testing.T) {
	ctx := context.Background()
	keys := StaticKeys{}
	kr := New(keys)
	alice := newDocument(t, keys)
	mallory := newDocument(t, keys)

	signed, err := kr.Sign(ctx, mallory, "key")
	require.NoError(t, err)

	_, err = kr.VerifiedMessage(ctx, alice, signed)
	assert.True(t, IsVerificationError(err))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	ctx := context.Background()
	keys := StaticKeys{}
	kr := New(keys)
	doc := newDocument(t, keys)

	signed, err := kr.Sign(ctx, doc, "key")
	require.NoError(t, err)
	signed.Message = "other"

	_, err = kr.VerifiedMessage(ctx, doc, signed)
	assert.True(t, IsVerificationError(err))
}

func TestVerifyRejectsNonKeyAuthority(t *testing.T) {
	_, err := New(nil).VerifiedMessage(context.Background(), link.Document("abc"), SignedMessage{Message: "m", Signature: "x"})
	assert.True(t, IsEncodingError(err))
}

func TestSignWithoutKey(t *testing.T) {
	_, err := New(StaticKeys{}).Sign(context.Background(), link.Document("abc"), "m")
	assert.True(t, IsNoSigningKeyError(err))

	_, err = New(nil).Sign(context.Background(), link.Document("abc"), "m")
	assert.True(t, IsNoSigningKeyError(err))
}

func TestBoxRoundTrip(t *testing.T) {
	ctx := context.Background()
	kr := New(nil)
	sender, err := GenerateKeyPair()
	require.NoError(t, err)
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)

	b, err := kr.Box(ctx, sender.SecretKey, recipient.PublicKey, "hypermerge:/invited")
	require.NoError(t, err)

	plain, err := kr.OpenBox(ctx, sender.PublicKey, recipient.SecretKey, b)
	require.NoError(t, err)
	assert.Equal(t, "hypermerge:/invited", plain)
}

func TestOpenBoxWrongSender(t *testing.T) {
	ctx := context.Background()
	kr := New(nil)
	sender, _ := GenerateKeyPair()
	impostor, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()

	b, err := kr.Box(ctx, sender.SecretKey, recipient.PublicKey, "x")
	require.NoError(t, err)

	_, err = kr.OpenBox(ctx, impostor.PublicKey, recipient.SecretKey, b)
	assert.True(t, IsDecryptionError(err))
}

func TestOpenBoxMalformed(t *testing.T) {
	ctx := context.Background()
	kr := New(nil)
	kp, _ := GenerateKeyPair()

	_, err := kr.OpenBox(ctx, kp.PublicKey, kp.SecretKey, Box("0OIl"))
	assert.True(t, IsEncodingError(err))

	_, err = kr.OpenBox(ctx, kp.PublicKey, kp.SecretKey, Box("abc"))
	assert.True(t, IsDecryptionError(err))

	_, err = kr.OpenBox(ctx, EncodedPublicKey("abc"), kp.SecretKey, Box("abc"))
	assert.True(t, IsEncodingError(err))
}

func TestSealedBoxRoundTrip(t *testing.T) {
	ctx := context.Background()
	kr := New(nil)
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	sealed, err := kr.SealedBox(ctx, kp.PublicKey, "hypermerge:/workspace")
	require.NoError(t, err)

	plain, err := kr.OpenSealedBox(ctx, kp, sealed)
	require.NoError(t, err)
	assert.Equal(t, "hypermerge:/workspace", plain)

	other, _ := GenerateKeyPair()
	_, err = kr.OpenSealedBox(ctx, other, sealed)
	assert.True(t, IsDecryptionError(err))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).OpenSealedBox(ctx, KeyPair{}, SealedBox(""))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSignedMessageContent(t *testing.T) {
	m := SignedMessage{Message: "k", Signature: "s"}
	back, ok := SignedMessageFrom(m.ToContent())
	require.True(t, ok)
	assert.Equal(t, m, back)

	_, ok = SignedMessageFrom(content.String("k"))
	assert.False(t, ok)
	_, ok = SignedMessageFrom(content.Map{"message": content.String("k")})
	assert.False(t, ok)
}

func TestErrorFormatting(t *testing.T) {
	err := newError(ErrCodeDecryption, errors.New("inner"), "open %d", 1)
	assert.Equal(t, "keyring DECRYPTION: open 1: inner", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "inner")
}
