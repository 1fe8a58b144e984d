package sp

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Message is one message on the wire. Header and Body are sent back to back
// and arrive as a single Body; splitting them again is up to the protocol.
type Message struct {
	Header []byte
	Body   []byte
}

// Len is the size of the payload on the wire.
func (m Message) Len() int {
	return len(m.Header) + len(m.Body)
}

// WriteTo writes a message to the given writer.
func (m Message) WriteTo(w io.Writer) (int64, error) {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(m.Len()))
	bufs := net.Buffers{size[:], m.Header, m.Body}
	return bufs.WriteTo(w)
}

// ReadFrom reads a message of any size from the given reader.
func (m *Message) ReadFrom(r io.Reader) (int64, error) {
	return m.readLimited(r, 0)
}

func (m *Message) readLimited(r io.Reader, max int64) (int64, error) {
	var size [8]byte
	n, err := io.ReadFull(r, size[:])
	total := int64(n)
	if err != nil {
		return total, err
	}

	length := binary.BigEndian.Uint64(size[:])
	if max > 0 && length > uint64(max) {
		return total, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, length, max)
	}

	m.Header = nil
	m.Body = make([]byte, length)
	n, err = io.ReadFull(r, m.Body)
	total += int64(n)
	return total, err
}

type tooLarge struct{}

func (tooLarge) Error() string {
	return "Message too large"
}

var ErrTooLarge tooLarge
