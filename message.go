package gosp

import "time"

// Message is a unit of transfer. Header is only filled on raw sockets,
// where it carries the routing words that devices must forward untouched.
type Message struct {
	Header []byte
	Body   []byte

	// pipe and socket the message arrived on, unset for locally created
	// messages.
	pipe    uint32
	from    *Socket
	arrived time.Time
}

// NewMessage wraps body in a message.
func NewMessage(body []byte) *Message {
	return &Message{Body: body}
}
