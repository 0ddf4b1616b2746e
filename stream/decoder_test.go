package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderReadsUntilEOF(t *testing.T) {
	d := NewDecoder(iotest.OneByteReader(strings.NewReader("abc")))

	var got []string
	for {
		chunk, err := d.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.True(t, d.Done())
}

func TestDecoderSplitCodePointRejoinsInParser(t *testing.T) {
	body := `{"choices":[{"delta":{"content":"☕"}}]`
	d := NewDecoder(iotest.OneByteReader(strings.NewReader(body)))

	var p Parser
	var got []string
	for {
		chunk, err := d.Next()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, p.Feed(chunk)...)
	}

	assert.Equal(t, []string{"☕"}, got)
}

func TestDecoderReturnsDataBeforeError(t *testing.T) {
	boom := errors.New("connection reset")
	d := NewDecoder(iotest.DataErrReader(io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(boom))))

	chunk, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "partial", chunk)

	_, err = d.Next()
	assert.ErrorIs(t, err, boom)
	assert.False(t, d.Done())
}
