// Package sp implements the wire format spoken between gosp sockets: an
// eight byte connection header followed by length prefixed messages.
package sp

import (
	"fmt"
	"io"
)

// HeaderLen is the size of the connection header.
const HeaderLen = 8

// Header opens every connection. It names the protocol of the sender.
type Header struct {
	Protocol uint16
}

// WriteTo writes the header to the given writer.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	buf := [HeaderLen]byte{0x00, 'S', 'P', 0x00, byte(h.Protocol >> 8), byte(h.Protocol), 0x00, 0x00}
	n, err := w.Write(buf[:])
	return int64(n), err
}

// ReadFrom reads a header from the given reader.
func (h *Header) ReadFrom(r io.Reader) (int64, error) {
	var buf [HeaderLen]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return int64(n), err
	}

	if buf[0] != 0x00 || buf[1] != 'S' || buf[2] != 'P' || buf[3] != 0x00 {
		return int64(n), fmt.Errorf("%w: bad magic % x", ErrInvalidHeader, buf[:4])
	}
	if buf[6] != 0x00 || buf[7] != 0x00 {
		return int64(n), fmt.Errorf("%w: non-zero reserved bytes", ErrInvalidHeader)
	}
	h.Protocol = uint16(buf[4])<<8 | uint16(buf[5])
	return int64(n), nil
}

type invalidHeader struct{}

func (invalidHeader) Error() string {
	return "Invalid header"
}

var ErrInvalidHeader invalidHeader

type protocolMismatch struct{}

func (protocolMismatch) Error() string {
	return "Protocol mismatch"
}

var ErrProtocolMismatch protocolMismatch
