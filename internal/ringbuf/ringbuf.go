// Package ringbuf provides the byte accumulator used by the link-layer
// receiver state machine while it is collecting an I-frame's stuffed
// payload region. It is a growable analogue of a circular fifo: frame
// sizes are not known up front and are only bounded by what the timer
// window lets the serial device deliver, so unlike a fixed-capacity
// ring it never refuses a write.
package ringbuf

// Buffer accumulates bytes between a Reset and the next Bytes call.
type Buffer struct {
	data []byte
}

// New returns a Buffer with an initial capacity hint.
func New(capacityHint int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacityHint)}
}

// Reset discards any accumulated bytes, keeping the underlying storage.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

// WriteByte appends a single byte, as the DATA state does one byte at a time.
func (b *Buffer) WriteByte(c byte) {
	b.data = append(b.data, c)
}

// Len returns the number of accumulated bytes.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the accumulated bytes. The slice is owned by the Buffer
// and is only valid until the next Reset or WriteByte call.
func (b *Buffer) Bytes() []byte {
	return b.data
}
