package gosp

import (
	"fmt"
	"sync"

	"github.com/workspace-9/gosp/transport"
	"github.com/workspace-9/gosp/transport/inproc"
	"github.com/workspace-9/gosp/transport/ipc"
	"github.com/workspace-9/gosp/transport/tcp"
)

func init() {
	RegisterTransport("inproc", func() transport.Transport {
		return inproc.New()
	})
	RegisterTransport("ipc", func() transport.Transport {
		return ipc.Transport{}
	})
	RegisterTransport("tcp", func() transport.Transport {
		return tcp.Transport{}
	})
}

// TransportFactory creates a transport. Every Context calls it once, so
// transports with state such as inproc are scoped to their Context.
type TransportFactory func() transport.Transport

// registeredTransports contains all registered transports.
var registeredTransports struct {
	transports map[string]TransportFactory
	sync.RWMutex
}

// RegisterTransport makes a transport available to contexts created
// afterwards. Names must match a scheme known to transport.Parse.
func RegisterTransport(name string, fac TransportFactory) error {
	registeredTransports.Lock()
	defer registeredTransports.Unlock()

	if registeredTransports.transports == nil {
		registeredTransports.transports = make(map[string]TransportFactory)
	}

	if _, ok := registeredTransports.transports[name]; ok {
		return fmt.Errorf("%w: %s", ErrTransportExists, name)
	}

	registeredTransports.transports[name] = fac

	return nil
}

type transportExists struct{}

func (transportExists) Error() string {
	return "Transport already registered"
}

var ErrTransportExists transportExists
