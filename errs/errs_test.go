package errs_test

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workspace-9/gosp/errs"
)

func TestKindCodesAreDistinct(t *testing.T) {
	seen := map[int]string{}
	for _, sym := range errs.Symbols() {
		prev, dup := seen[sym.Code]
		require.Falsef(t, dup, "%s and %s share code %d", prev, sym.Name, sym.Code)
		seen[sym.Code] = sym.Name

		kind, ok := errs.FromCode(sym.Code)
		require.True(t, ok)
		assert.Equal(t, sym.Name, kind.String())
	}
}

func TestErrorMessagesMatchStrerror(t *testing.T) {
	cases := map[errs.Kind]string{
		errs.InvalidAddress:       "Invalid argument",
		errs.NameTooLong:          "File name too long",
		errs.ProtocolNotSupported: "Protocol not supported",
		errs.NoSuchDevice:         "No such device",
		errs.AddressInUse:         "Address already in use",
	}
	for kind, msg := range cases {
		assert.Equal(t, msg, kind.Error())
	}
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	err := errs.New("bind", "inproc://a", errs.AddressInUse, nil)
	wrapped := fmt.Errorf("starting frontend: %w", err)

	assert.ErrorIs(t, wrapped, errs.AddressInUse)
	kind, ok := errs.KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, errs.AddressInUse, kind)
	assert.Equal(t, "bind inproc://a: Address already in use", err.Error())
}

func TestOSErrorsAreMapped(t *testing.T) {
	err := errs.Wrap("bind", "tcp://127.0.0.1:1", fmt.Errorf("listen: %w", syscall.EADDRINUSE), errs.TransportFault)
	assert.Equal(t, errs.AddressInUse, err.Kind)
	assert.Equal(t, int(syscall.EADDRINUSE), err.Code)

	err = errs.Wrap("connect", "", errors.New("boom"), errs.TransportFault)
	assert.Equal(t, errs.TransportFault, err.Kind)
}

func TestRegistryKeepsLastFailure(t *testing.T) {
	var reg errs.Registry
	assert.True(t, reg.Last().IsZero())

	reg.RecordError(errs.New("bind", "", errs.NoSuchDevice, nil))
	assert.Equal(t, errs.Record{Kind: errs.NoSuchDevice, Code: 19}, reg.Last())

	reg.RecordError(errs.SocketClosed)
	assert.Equal(t, errs.SocketClosed, reg.Last().Kind)

	reg.RecordError(errors.New("unclassified"))
	assert.Equal(t, errs.SocketClosed, reg.Last().Kind)
}
