package stream

import (
	"errors"
	"io"
)

const readBufferSize = 4096

// Decoder turns a live response body into text chunks, one chunk per read.
//
// Chunks are handed on as raw bytes; a multi-byte code point split across two
// reads is rejoined once the Parser concatenates the chunks, so nothing is
// replaced or dropped at read boundaries.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
}

// NewDecoder creates a Decoder reading from r
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, buf: make([]byte, readBufferSize)}
}

// Next returns the next chunk of text. It returns io.EOF once the body is
// exhausted; any other error means the read failed.
func (d *Decoder) Next() (string, error) {
	for d.err == nil {
		n, err := d.r.Read(d.buf)
		if err != nil {
			d.err = err
		}
		if n > 0 {
			return string(d.buf[:n]), nil
		}
	}
	return "", d.err
}

// Done reports whether the body ended cleanly
func (d *Decoder) Done() bool {
	return errors.Is(d.err, io.EOF)
}
