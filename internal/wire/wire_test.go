package wire

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMessageHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, "QUERY_FREE_SPACE_LIST"))
	assert.Equal(t, "21      QUERY_FREE_SPACE_LIST", buf.String())
}

func TestReadMessageSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, "OK"))
	require.NoError(t, WriteMessage(&buf, ""))
	require.NoError(t, WriteMessage(&buf, "1[]:[]/mnt/a.mpg"))

	for _, want := range []string{"OK", "", "1[]:[]/mnt/a.mpg"} {
		got, err := ReadMessage(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ReadMessage(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessageMalformedHeader(t *testing.T) {
	_, err := ReadMessage(strings.NewReader("abcdefghpayload"))
	assert.Error(t, err)
}

func TestReadMessageTruncatedPayload(t *testing.T) {
	_, err := ReadMessage(strings.NewReader("10      short"))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
