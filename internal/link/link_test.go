package link

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Link
	}{
		{"document", "hypermerge:/abc123", Document("abc123")},
		{"file", "hyperfile:/f00d", File("f00d")},
		{"file with slashes", "hyperfile:///f00d", File("f00d")},
		{"wrapped", "hypermerge:/abc?pushpinContentType=board", Link{Kind: KindWrapped, ID: "abc", ContentType: "board"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUnrecognized(t *testing.T) {
	inputs := []string{
		"",
		"hello",
		"hypermerge:/",
		"hypermerge:/a-b",
		"hypermerge://abc",
		"hyperfile:/",
		"hypermerge:/abc?pushpinContentType=",
		"hypermerge:/abc?pushpinContentType=a&b=c",
		"hypermerge:/abc?other=board",
		" hypermerge:/abc",
	}
	for _, in := range inputs {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrUnrecognized, "input %q", in)
		assert.False(t, IsLink(in), "input %q", in)
	}
}

func TestRecognizersAreDisjoint(t *testing.T) {
	wrapped := "hypermerge:/abc?pushpinContentType=board"
	assert.True(t, IsWrappedURL(wrapped))
	assert.False(t, IsDocumentURL(wrapped))
	assert.False(t, IsFileURL(wrapped))

	assert.True(t, IsDocumentURL("hypermerge:/abc"))
	assert.False(t, IsWrappedURL("hypermerge:/abc"))
}

func TestClassifierSoundness(t *testing.T) {
	for _, id := range []string{"a", "abc123", "Zz_9", "5KQwr"} {
		assert.True(t, IsDocumentURL(DocumentURL(id)))
		assert.True(t, IsFileURL(FileURL(id)))

		got, err := ID(DocumentURL(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)

		got, err = ID(FileURL(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestWrapRoundTrip(t *testing.T) {
	doc := "hypermerge:/abc123"
	for _, ct := range []string{"board", "storage-peer", "text/plain"} {
		wrapped, err := Wrap(ct, doc)
		require.NoError(t, err)
		assert.True(t, IsWrappedURL(wrapped))

		bare, gotType, err := ParseWrapped(wrapped)
		require.NoError(t, err)
		assert.Equal(t, doc, bare)
		assert.Equal(t, ct, gotType)

		unwrapped, err := Unwrap(wrapped)
		require.NoError(t, err)
		assert.Equal(t, doc, unwrapped)
	}
}

func TestWrapErrors(t *testing.T) {
	_, err := Wrap("", "hypermerge:/abc")
	assert.ErrorIs(t, err, ErrEmptyContentType)

	_, err = Wrap("board", "hypermerge:/abc?pushpinContentType=board")
	assert.ErrorIs(t, err, ErrAlreadyWrapped)

	_, err = Wrap("board", "hyperfile:/abc")
	assert.ErrorIs(t, err, ErrUnrecognized)

	_, err = Wrap("a=b", "hypermerge:/abc")
	assert.ErrorIs(t, err, ErrInvalidContentType)

	_, err = Wrap("board", "hypermerge:/not valid")
	assert.ErrorIs(t, err, ErrUnrecognized)
}

func TestParseWrappedRejectsBare(t *testing.T) {
	_, _, err := ParseWrapped("hypermerge:/abc")
	assert.ErrorIs(t, err, ErrUnrecognized)
}

func TestUnwrap(t *testing.T) {
	got, err := Unwrap("hypermerge:/abc")
	require.NoError(t, err)
	assert.Equal(t, "hypermerge:/abc", got)

	_, err = Unwrap("hyperfile:/abc")
	assert.ErrorIs(t, err, ErrUnrecognized)
}

func TestLinkBareAndString(t *testing.T) {
	w := Link{Kind: KindWrapped, ID: "abc", ContentType: "board"}
	assert.Equal(t, "hypermerge:/abc?pushpinContentType=board", w.String())
	assert.Equal(t, Document("abc"), w.Bare())
	assert.Equal(t, File("x"), File("x").Bare())
	assert.Equal(t, "", Link{}.String())
	assert.True(t, Link{}.IsZero())
	assert.Equal(t, "wrapped", KindWrapped.String())
}

func TestLinkJSON(t *testing.T) {
	b, err := json.Marshal([]Link{Document("a"), File("b")})
	require.NoError(t, err)
	assert.Equal(t, `["hypermerge:/a","hyperfile:/b"]`, string(b))

	var back []Link
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, []Link{Document("a"), File("b")}, back)

	assert.Error(t, json.Unmarshal([]byte(`["nope"]`), &back))
}
