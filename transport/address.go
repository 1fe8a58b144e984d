package transport

import (
	"net"
	"strconv"
	"strings"

	"github.com/workspace-9/gosp/errs"
)

// MaxAddrLen bounds the transport specific part of an address.
const MaxAddrLen = 128

// Kind identifies a transport.
type Kind int

const (
	KindInproc Kind = iota + 1
	KindIPC
	KindTCP
)

// String returns the URL scheme of the transport.
func (k Kind) String() string {
	switch k {
	case KindInproc:
		return "inproc"
	case KindIPC:
		return "ipc"
	case KindTCP:
		return "tcp"
	}
	return ""
}

var schemes = map[string]Kind{
	"inproc": KindInproc,
	"ipc":    KindIPC,
	"tcp":    KindTCP,
}

// Address is a parsed endpoint address.
type Address struct {
	// Kind is the transport.
	Kind Kind

	// Raw is the address as given by the caller.
	Raw string

	// Name is the inproc endpoint name.
	Name string

	// Path is the ipc socket path.
	Path string

	// Host is the tcp host, IP literal or interface name. Empty and "*" mean
	// every interface and are only valid when binding.
	Host string

	// Port is the tcp port.
	Port int

	// Interface is the optional local interface of a tcp connect address
	// written as tcp://iface;host:port.
	Interface string
}

// Scheme returns the URL scheme of the address.
func (a Address) Scheme() string {
	return a.Kind.String()
}

// Wildcard is true for tcp addresses that bind every interface.
func (a Address) Wildcard() bool {
	return a.Kind == KindTCP && (a.Host == "" || a.Host == "*")
}

// HostPort joins host and port for tcp addresses.
func (a Address) HostPort() string {
	host := a.Host
	if host == "*" {
		host = ""
	}
	return net.JoinHostPort(host, strconv.Itoa(a.Port))
}

func (a Address) String() string {
	return a.Raw
}

func invalid(raw string) error {
	return errs.New("parse", raw, errs.InvalidAddress, nil)
}

// Parse validates raw and returns its structured form. It has no side
// effects; interface resolution for tcp binds happens in the tcp transport.
func Parse(raw string) (Address, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		// A known scheme with a malformed separator is a bad address, not an
		// unknown protocol.
		if prefix, _, found := strings.Cut(raw, ":"); found {
			if _, known := schemes[prefix]; known {
				return Address{}, invalid(raw)
			}
		}
		return Address{}, errs.New("parse", raw, errs.ProtocolNotSupported, nil)
	}

	kind, known := schemes[scheme]
	if !known {
		return Address{}, errs.New("parse", raw, errs.ProtocolNotSupported, nil)
	}

	if len(rest) > MaxAddrLen {
		return Address{}, errs.New("parse", raw, errs.NameTooLong, nil)
	}

	addr := Address{Kind: kind, Raw: raw}
	switch kind {
	case KindInproc:
		if rest == "" {
			return Address{}, invalid(raw)
		}
		addr.Name = rest
	case KindIPC:
		if rest == "" {
			return Address{}, invalid(raw)
		}
		addr.Path = rest
	case KindTCP:
		if err := parseTCP(rest, &addr); err != nil {
			return Address{}, err
		}
	}

	return addr, nil
}

func parseTCP(rest string, addr *Address) error {
	if iface, remainder, ok := strings.Cut(rest, ";"); ok {
		if iface == "" || !validHost(iface) {
			return invalid(addr.Raw)
		}
		addr.Interface = iface
		rest = remainder
	}

	colon := strings.LastIndexByte(rest, ':')
	if colon < 0 {
		return invalid(addr.Raw)
	}
	host, portStr := rest[:colon], rest[colon+1:]

	port, ok := parsePort(portStr)
	if !ok {
		return invalid(addr.Raw)
	}

	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
		if net.ParseIP(host) == nil {
			return invalid(addr.Raw)
		}
	} else if host != "" && host != "*" && !validHost(host) {
		return invalid(addr.Raw)
	}

	addr.Host = host
	addr.Port = port
	return nil
}

func parsePort(s string) (int, bool) {
	if s == "" || len(s) > 5 {
		return 0, false
	}
	port := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		port = port*10 + int(c-'0')
	}
	return port, port <= 65535
}

// validHost accepts IP literals and RFC 1123 host names. Interface names such
// as eth0 are syntactically host names.
func validHost(host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}
	if len(host) > 255 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			default:
				return false
			}
		}
	}
	return true
}

// ValidateConnect applies the checks that only concern connecting: a tcp
// connect target must name a host.
func ValidateConnect(addr Address) error {
	if addr.Kind == KindTCP && addr.Wildcard() {
		return invalid(addr.Raw)
	}
	return nil
}
