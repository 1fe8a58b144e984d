// Package tcp connects sockets over TCP.
package tcp

import (
	"context"
	"net"
	"strconv"

	"github.com/workspace-9/gosp/errs"
	"github.com/workspace-9/gosp/transport"
)

// InterfaceLookup returns the network interfaces known to the host.
type InterfaceLookup func() ([]net.Interface, error)

// Transport implements transport.Transport for tcp:// addresses.
type Transport struct {
	// Interfaces defaults to net.Interfaces.
	Interfaces InterfaceLookup
}

func (Transport) Name() string {
	return "tcp"
}

func (t Transport) lookup() InterfaceLookup {
	if t.Interfaces != nil {
		return t.Interfaces
	}
	return net.Interfaces
}

// Identity is the resolved listen address. Ephemeral ports are never
// registered since the kernel hands out a fresh one per bind.
func (t Transport) Identity(addr transport.Address) (string, error) {
	hostport, err := ResolveListen(addr, t.lookup())
	if err != nil {
		return "", err
	}
	if addr.Port == 0 {
		return "", nil
	}
	return "tcp://" + hostport, nil
}

func (t Transport) Listen(ctx context.Context, addr transport.Address) (net.Listener, error) {
	hostport, err := ResolveListen(addr, t.lookup())
	if err != nil {
		return nil, err
	}
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", hostport)
}

// Dial connects to addr. An unknown local interface is fatal; everything
// else may succeed on a later attempt.
func (t Transport) Dial(ctx context.Context, addr transport.Address) (net.Conn, bool, error) {
	var d net.Dialer
	if addr.Interface != "" {
		ip, err := resolveHost(addr.Interface, addr.Raw, t.lookup())
		if err != nil {
			return nil, true, err
		}
		d.LocalAddr = &net.TCPAddr{IP: ip}
	}

	conn, err := d.DialContext(ctx, "tcp", addr.HostPort())
	if err != nil {
		return nil, false, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return conn, false, nil
}

// ResolveListen maps the host of a bind address onto something the kernel
// can listen on. The host must be a wildcard, an IP literal, localhost or the
// name of a local interface; anything else is NoSuchDevice.
func ResolveListen(addr transport.Address, lookup InterfaceLookup) (string, error) {
	if addr.Wildcard() {
		return net.JoinHostPort("", strconv.Itoa(addr.Port)), nil
	}
	ip, err := resolveHost(addr.Host, addr.Raw, lookup)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(addr.Port)), nil
}

func resolveHost(host, raw string, lookup InterfaceLookup) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	if host == "localhost" {
		return net.IPv4(127, 0, 0, 1), nil
	}

	ifaces, err := lookup()
	if err != nil {
		return nil, errs.New("resolve", raw, errs.NoSuchDevice, err)
	}
	for _, iface := range ifaces {
		if iface.Name != host {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, errs.New("resolve", raw, errs.NoSuchDevice, err)
		}
		if ip := pickIP(addrs); ip != nil {
			return ip, nil
		}
	}
	return nil, errs.New("resolve", raw, errs.NoSuchDevice, nil)
}

// pickIP prefers the first IPv4 address of an interface.
func pickIP(addrs []net.Addr) net.IP {
	var v6 net.IP
	for _, a := range addrs {
		var ip net.IP
		switch a := a.(type) {
		case *net.IPNet:
			ip = a.IP
		case *net.IPAddr:
			ip = a.IP
		}
		if ip == nil {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
		if v6 == nil {
			v6 = ip
		}
	}
	return v6
}
