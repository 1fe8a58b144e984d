// Package errs defines the transport independent error taxonomy shared by
// every gosp socket, transport and device.
package errs

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind is the symbolic category of a failure. Every Kind has a stable numeric
// code modelled on the platform errno values.
type Kind int

const (
	_ Kind = iota
	InvalidAddress
	NameTooLong
	ProtocolNotSupported
	NoSuchDevice
	AddressInUse
	SurveyInProgress
	SocketClosed
	NotSupported
	BadState
	TimedOut
	Terminated
	TransportFault
	EndpointNotFound
	ProtocolMismatch
)

// hausnumero is the base of the library specific codes, chosen to stay clear
// of the platform errno space.
const hausnumero = 156384712

const (
	codeEFSM  = hausnumero + 51
	codeETERM = hausnumero + 53
)

var kinds = [...]struct {
	name    string
	code    int
	message string
}{
	InvalidAddress:       {"InvalidAddress", 22, "Invalid argument"},
	NameTooLong:          {"NameTooLong", 36, "File name too long"},
	ProtocolNotSupported: {"ProtocolNotSupported", 93, "Protocol not supported"},
	NoSuchDevice:         {"NoSuchDevice", 19, "No such device"},
	AddressInUse:         {"AddressInUse", 98, "Address already in use"},
	SurveyInProgress:     {"SurveyInProgress", 16, "Device or resource busy"},
	SocketClosed:         {"SocketClosed", 9, "Bad file descriptor"},
	NotSupported:         {"NotSupported", 95, "Operation not supported"},
	BadState:             {"BadState", codeEFSM, "Operation cannot be performed in this state"},
	TimedOut:             {"TimedOut", 110, "Connection timed out"},
	Terminated:           {"Terminated", codeETERM, "Context was terminated"},
	TransportFault:       {"TransportFault", 104, "Connection reset by peer"},
	EndpointNotFound:     {"EndpointNotFound", 2, "No such file or directory"},
	ProtocolMismatch:     {"ProtocolMismatch", 71, "Protocol error"},
}

func (k Kind) valid() bool {
	return k > 0 && int(k) < len(kinds)
}

// String returns the symbolic name of the kind.
func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kinds[k].name
}

// Code returns the stable numeric code of the kind.
func (k Kind) Code() int {
	if !k.valid() {
		return 0
	}
	return kinds[k].code
}

// Error returns the human readable message of the kind. A Kind is itself an
// error so that errors.Is(err, errs.AddressInUse) works on wrapped errors.
func (k Kind) Error() string {
	if !k.valid() {
		return "Unknown error"
	}
	return kinds[k].message
}

// Symbol is one entry of the exported error symbol table.
type Symbol struct {
	Name    string
	Code    int
	Message string
}

// Symbols lists every kind in declaration order.
func Symbols() []Symbol {
	out := make([]Symbol, 0, len(kinds)-1)
	for k := Kind(1); k.valid(); k++ {
		out = append(out, Symbol{Name: k.String(), Code: k.Code(), Message: k.Error()})
	}
	return out
}

// FromCode maps a numeric code back to its kind.
func FromCode(code int) (Kind, bool) {
	for k := Kind(1); k.valid(); k++ {
		if kinds[k].code == code {
			return k, true
		}
	}
	return 0, false
}

// Error is the failure returned by socket operations.
type Error struct {
	// Op is the operation that failed, e.g. "bind" or "send".
	Op string

	// Addr is the address involved, if any.
	Addr string

	// Kind classifies the failure.
	Kind Kind

	// Code is the raw code, usually Kind.Code() or the OS errno that caused it.
	Code int

	// Err is the underlying cause, if any.
	Err error
}

// New builds an Error of the given kind.
func New(op, addr string, kind Kind, cause error) *Error {
	code := kind.Code()
	var errno syscall.Errno
	if errors.As(cause, &errno) {
		code = int(errno)
	}
	return &Error{Op: op, Addr: addr, Kind: kind, Code: code, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		if e.Addr != "" {
			msg = e.Op + " " + e.Addr + ": " + msg
		} else {
			msg = e.Op + ": " + msg
		}
	}
	if e.Err != nil && !errors.Is(e.Err, e.Kind) {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Record returns the registry record for this error.
func (e *Error) Record() Record {
	return Record{Kind: e.Kind, Code: e.Code}
}

// KindOf extracts the kind of err. OS errors that have a counterpart in the
// taxonomy are mapped; anything else reports false.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return 0, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	var k Kind
	if errors.As(err, &k) {
		return k, true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fromErrno(errno)
	}
	return 0, false
}

func fromErrno(errno syscall.Errno) (Kind, bool) {
	switch errno {
	case syscall.EADDRINUSE:
		return AddressInUse, true
	case syscall.ENODEV:
		return NoSuchDevice, true
	case syscall.ENAMETOOLONG:
		return NameTooLong, true
	case syscall.EINVAL:
		return InvalidAddress, true
	case syscall.EPROTONOSUPPORT:
		return ProtocolNotSupported, true
	case syscall.ECONNRESET, syscall.EPIPE, syscall.ECONNREFUSED:
		return TransportFault, true
	case syscall.ETIMEDOUT:
		return TimedOut, true
	}
	return 0, false
}

// Wrap classifies err and returns it as an *Error for op. Errors that are
// already classified keep their kind; unknown errors become fallback.
func Wrap(op, addr string, err error, fallback Kind) *Error {
	var e *Error
	if errors.As(err, &e) {
		c := *e
		if c.Op == "" {
			c.Op = op
		}
		if c.Addr == "" {
			c.Addr = addr
		}
		return &c
	}
	kind, ok := KindOf(err)
	if !ok {
		kind = fallback
	}
	return New(op, addr, kind, err)
}
