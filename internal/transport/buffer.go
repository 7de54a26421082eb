package transport

import "fmt"

// MsgBuffer is a message payload with a fixed capacity and an adjustable
// data size. A buffer handed to EnqueueRequest stays in flight until its
// continuation runs; it must not be resized in between.
type MsgBuffer struct {
	buf      []byte
	dataSize int
	inFlight bool
}

// NewMsgBuffer allocates a buffer whose data size equals its capacity.
func NewMsgBuffer(capacity int) *MsgBuffer {
	return &MsgBuffer{buf: make([]byte, capacity), dataSize: capacity}
}

// DataSize returns the number of payload bytes.
func (m *MsgBuffer) DataSize() int { return m.dataSize }

// Capacity returns the maximum data size the buffer was allocated for.
func (m *MsgBuffer) Capacity() int { return len(m.buf) }

// Bytes returns the payload.
func (m *MsgBuffer) Bytes() []byte { return m.buf[:m.dataSize] }

// InFlight reports whether the transport currently owns the buffer.
func (m *MsgBuffer) InFlight() bool { return m.inFlight }

// Resize changes the data size. It fails while the buffer is in flight or
// when size exceeds the capacity.
func (m *MsgBuffer) Resize(size int) error {
	if m.inFlight {
		return ErrBufferInFlight
	}
	if size < 0 || size > len(m.buf) {
		return fmt.Errorf("%w: size %d, capacity %d", ErrBufferTooSmall, size, len(m.buf))
	}
	m.dataSize = size
	return nil
}

// Fill replaces the payload with data, growing the backing array if data
// is larger than the capacity.
func (m *MsgBuffer) Fill(data []byte) {
	if len(data) > len(m.buf) {
		m.buf = make([]byte, len(data))
	}
	m.dataSize = copy(m.buf, data)
}
