package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/workspace-9/gosp"
	"github.com/workspace-9/gosp/config"
)

func TestAppForwardsUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Devices = []config.DeviceConfig{{
		Name:     "jobs",
		Frontend: config.EndpointConfig{Pattern: "pull", Bind: []string{"inproc://jobs-in"}},
		Backend:  config.EndpointConfig{Pattern: "push", Bind: []string{"inproc://jobs-out"}},
	}}
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, err := NewApp(ctx, cfg, zap.NewNop())
	require.NoError(t, err)

	producer, err := app.sp.NewSocket(gosp.Push)
	require.NoError(t, err)
	consumer, err := app.sp.NewSocket(gosp.Pull)
	require.NoError(t, err)
	_, err = producer.Connect("inproc://jobs-in")
	require.NoError(t, err)
	_, err = consumer.Connect("inproc://jobs-out")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()

	require.NoError(t, producer.Send([]byte("job")))
	rctx, rcancel := context.WithTimeout(ctx, 5*time.Second)
	defer rcancel()
	m, err := consumer.RecvMsgContext(rctx)
	require.NoError(t, err)
	assert.Equal(t, "job", string(m.Body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.Empty(t, app.sp.Sockets())
}

func TestNewAppReportsBindFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Devices = []config.DeviceConfig{{
		Name:     "bad",
		Frontend: config.EndpointConfig{Pattern: "pull", Bind: []string{"tcp://eth99:5555"}},
		Backend:  config.EndpointConfig{Pattern: "push", Bind: []string{"inproc://out"}},
	}}

	_, err := NewApp(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, `device "bad"`)
}

func TestParseFlags(t *testing.T) {
	opts := ParseFlags([]string{"-config", "/etc/gosp.yaml", "-log-level", "debug"})
	assert.Equal(t, "/etc/gosp.yaml", opts.ConfigPath)
	assert.Equal(t, "debug", opts.LogLevel)
}
