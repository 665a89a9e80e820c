package basicio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterParserRoundTrip(t *testing.T) {
	text := RenderToString(func(w *Writer) {
		w.Stanza("conflict content")
		w.Field("path", "some/file.txt")
		w.FieldInt("node", 42)
		w.FieldHex("left", []byte{0xde, 0xad, 0xbe, 0xef})
		w.Flag("resolved_drop_left")
		w.Blank()
	})

	p := NewParser(bytes.NewReader([]byte(text)))

	l, err := p.Next()
	require.NoError(t, err)
	assert.True(t, l.IsHeader)
	assert.Equal(t, "conflict content", l.Header)

	l, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, "path", l.Key)
	assert.Equal(t, "some/file.txt", l.Value)

	l, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, "node", l.Key)
	assert.True(t, l.IsInt)
	assert.Equal(t, int64(42), l.IntValue)

	l, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, "left", l.Key)
	assert.True(t, l.IsHex)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, l.HexBytes)

	l, err = p.Next()
	require.NoError(t, err)
	assert.Equal(t, "resolved_drop_left", l.Key)
	assert.True(t, l.IsFlag)

	l, err = p.Next()
	require.NoError(t, err)
	assert.True(t, l.IsBlank)

	_, err = p.Next()
	assert.Equal(t, io.EOF, err)
}

func TestQuoteUnquoteEscapesBackslashAndQuote(t *testing.T) {
	s := `path with "quotes" and \backslash\`
	quoted := Quote(s)
	got, err := Unquote(quoted)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestParserRejectsUnquotedNonNumericValue(t *testing.T) {
	p := NewParser(bytes.NewReader([]byte("  key bareword\n")))
	_, err := p.Next()
	assert.Error(t, err)
}
