package sp

import (
	"encoding/binary"
	"fmt"
)

const (
	// WordLen is the size of one backtrace word.
	WordLen = 4

	// MaxHops bounds the number of devices a request may cross.
	MaxHops = 8

	idBit = 0x80000000
)

// IsID is true for words that end a backtrace: request and survey ids carry
// the top bit, hop words do not.
func IsID(word uint32) bool {
	return word&idBit != 0
}

// MakeID tags a counter value as a request id.
func MakeID(n uint32) uint32 {
	return n | idBit
}

// PutWord appends word to b.
func PutWord(b []byte, word uint32) []byte {
	return binary.BigEndian.AppendUint32(b, word)
}

// Word reads the first word of b.
func Word(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// SplitBacktrace splits an incoming request into its backtrace, which ends
// with the first id word, and the body.
func SplitBacktrace(b []byte) (header, body []byte, err error) {
	for hops := 0; hops <= MaxHops; hops++ {
		off := hops * WordLen
		if len(b) < off+WordLen {
			return nil, nil, fmt.Errorf("%w: truncated backtrace", ErrMalformed)
		}
		if IsID(Word(b[off:])) {
			return b[:off+WordLen], b[off+WordLen:], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: more than %d hops", ErrMalformed, MaxHops)
}

// SplitID splits an incoming reply into its id and body.
func SplitID(b []byte) (id uint32, body []byte, err error) {
	if len(b) < WordLen {
		return 0, nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	id = Word(b)
	if !IsID(id) {
		return 0, nil, fmt.Errorf("%w: reply id without top bit", ErrMalformed)
	}
	return id, b[WordLen:], nil
}

type malformed struct{}

func (malformed) Error() string {
	return "Malformed message"
}

var ErrMalformed malformed
