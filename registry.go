package gosp

import (
	"sync"

	"github.com/google/uuid"

	"github.com/workspace-9/gosp/errs"
)

type claim struct {
	socket   uuid.UUID
	endpoint int
}

// addressTable maps bound address identities to their holder. Checking and
// inserting happen under one lock so concurrent binds of one address
// produce exactly one winner.
type addressTable struct {
	mu     sync.Mutex
	claims map[string]claim
}

// claim reserves identity for the endpoint. An empty identity is never
// reserved.
func (t *addressTable) claim(identity, raw string, socket uuid.UUID, endpoint int) error {
	if identity == "" {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, taken := t.claims[identity]; taken {
		return errs.New("bind", raw, errs.AddressInUse, nil)
	}
	t.claims[identity] = claim{socket: socket, endpoint: endpoint}
	return nil
}

// release frees identity if the endpoint still holds it.
func (t *addressTable) release(identity string, socket uuid.UUID, endpoint int) {
	if identity == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.claims[identity] == (claim{socket: socket, endpoint: endpoint}) {
		delete(t.claims, identity)
	}
}
