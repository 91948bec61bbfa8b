package station

import (
	"errors"
	"fmt"
	"io"
)

// Buffer is the fixed-size storage a payload is read into before parsing.
// Its capacity never grows: a body larger than the buffer is rejected with
// ErrBufferOverflow and nothing past the capacity is retained.
type Buffer struct {
	data []byte
	n    int
}

func NewBuffer(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the valid portion of the buffer. The slice aliases internal
// storage and is invalidated by the next Reset or Fill.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

// Reset zeroes the storage so a previous attempt's payload cannot leak into
// the next one.
func (b *Buffer) Reset() {
	clear(b.data)
	b.n = 0
}

// Fill resets the buffer and reads r until EOF. A declared contentLength
// above capacity fails before any read; pass -1 when unknown.
func (b *Buffer) Fill(r io.Reader, contentLength int64) error {
	b.Reset()
	if contentLength > int64(len(b.data)) {
		return fmt.Errorf("%w: declared %d bytes, buffer holds %d", ErrBufferOverflow, contentLength, len(b.data))
	}
	for b.n < len(b.data) {
		m, err := r.Read(b.data[b.n:])
		b.n += m
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			b.Reset()
			return fmt.Errorf("read payload: %w", err)
		}
	}
	// Buffer is full: one more byte means the body does not fit.
	var probe [1]byte
	for {
		m, err := r.Read(probe[:])
		if m > 0 {
			b.Reset()
			return fmt.Errorf("%w: body exceeds %d bytes", ErrBufferOverflow, len(b.data))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			b.Reset()
			return fmt.Errorf("read payload: %w", err)
		}
	}
}
