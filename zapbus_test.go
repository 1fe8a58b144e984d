package gosp_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/workspace-9/gosp"
)

func TestZapBusLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bus := gosp.ZapBus{Logger: zap.New(core)}
	id := uuid.New()

	bus.Post(gosp.Event{EventType: gosp.EventTypeBound, Socket: id, Endpoint: 1, LocalAddr: "inproc://a"})
	bus.Post(gosp.Event{EventType: gosp.EventTypeDialFailed, Socket: id, RemoteAddr: "tcp://127.0.0.1:1", Err: errors.New("refused")})

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, gosp.EventTypeBound.String(), entries[0].Message)
	assert.Equal(t, "inproc://a", entries[0].ContextMap()["local"])
	assert.Equal(t, id.String(), entries[0].ContextMap()["socket"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "refused", entries[1].ContextMap()["error"])
}

func TestContextLogsThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := newContext(t, gosp.WithLogger(zap.New(core)))
	s := newSocket(t, c, gosp.Pull)

	bind(t, s, "inproc://logged")
	assert.Equal(t, 1, logs.FilterMessage(gosp.EventTypeBound.String()).Len())
}
