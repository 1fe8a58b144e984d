package gosp

import (
	"fmt"
	"strings"

	"github.com/workspace-9/gosp/errs"
)

// Pattern is the messaging pattern of a socket. Its value is the protocol
// number announced on the wire.
type Pattern int

const (
	Pair       = Pattern(16)
	Pub        = Pattern(32)
	Sub        = Pattern(33)
	Req        = Pattern(48)
	Rep        = Pattern(49)
	Push       = Pattern(80)
	Pull       = Pattern(81)
	Surveyor   = Pattern(98)
	Respondent = Pattern(99)
	Bus        = Pattern(112)
)

type sendPolicy int

const (
	sendNone = sendPolicy(iota)
	sendRoundRobin
	sendBroadcast
	sendReply
)

type headerKind int

const (
	headerNone = headerKind(iota)
	headerID
	headerBacktrace
)

type patternInfo struct {
	name   string
	peer   Pattern
	send   sendPolicy
	recv   bool
	header headerKind
}

var patterns = map[Pattern]patternInfo{
	Pair:       {"pair", Pair, sendRoundRobin, true, headerNone},
	Pub:        {"pub", Sub, sendBroadcast, false, headerNone},
	Sub:        {"sub", Pub, sendNone, true, headerNone},
	Req:        {"req", Rep, sendRoundRobin, true, headerID},
	Rep:        {"rep", Req, sendReply, true, headerBacktrace},
	Push:       {"push", Pull, sendRoundRobin, false, headerNone},
	Pull:       {"pull", Push, sendNone, true, headerNone},
	Surveyor:   {"surveyor", Respondent, sendBroadcast, true, headerID},
	Respondent: {"respondent", Surveyor, sendReply, true, headerBacktrace},
	Bus:        {"bus", Bus, sendBroadcast, true, headerNone},
}

func (p Pattern) info() patternInfo {
	return patterns[p]
}

// Valid is true for the patterns listed above.
func (p Pattern) Valid() bool {
	_, ok := patterns[p]
	return ok
}

func (p Pattern) String() string {
	if info, ok := patterns[p]; ok {
		return info.name
	}
	return fmt.Sprintf("Pattern(%d)", int(p))
}

// Number is the protocol number sent in the connection header.
func (p Pattern) Number() uint16 {
	return uint16(p)
}

// Peer is the pattern this one talks to.
func (p Pattern) Peer() Pattern {
	return p.info().peer
}

func (p Pattern) CanSend() bool {
	return p.info().send != sendNone
}

func (p Pattern) CanRecv() bool {
	return p.info().recv
}

// Patterns lists every pattern in protocol number order.
func Patterns() []Pattern {
	return []Pattern{Pair, Pub, Sub, Req, Rep, Push, Pull, Surveyor, Respondent, Bus}
}

// ParsePattern looks a pattern up by name, ignoring case.
func ParsePattern(name string) (Pattern, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, info := range patterns {
		if info.name == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown pattern %q", errs.ProtocolNotSupported, name)
}
