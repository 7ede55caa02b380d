package chat

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPayload(t *testing.T) {
	p := NewPayload("bob", "alice", "hello")

	require.Equal(t, "bob", p.From)
	require.Equal(t, Recipient{Kind: RecipientUser, Name: "alice"}, p.To)
	require.Equal(t, "from bob: hello\n", *p.Text)
	require.Nil(t, p.Media)
}

func TestEncodePayload_SingleLineRecord(t *testing.T) {
	data, err := EncodePayload(NewPayload("bob", "alice", "multi\nline"))
	require.NoError(t, err)

	require.True(t, bytes.HasSuffix(data, []byte("\n")))
	require.Equal(t, 1, bytes.Count(data, []byte("\n")), "embedded newlines must be escaped")
	require.NotContains(t, string(data), "media")

	p, err := DecodePayload(data)
	require.NoError(t, err)
	require.Equal(t, "from bob: multi\nline\n", *p.Text)
	require.Equal(t, "alice", p.To.Name)
}

func TestDecodePayload_Invalid(t *testing.T) {
	_, err := DecodePayload([]byte("not json\n"))
	require.ErrorContains(t, err, "decode payload")
}
