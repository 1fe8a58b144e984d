package main

import (
	"context"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	"go.uber.org/zap"

	"github.com/workspace-9/gosp"
)

// pollInterval bounds how long a zmq receive blocks before ctx is checked.
const pollInterval = 200 * time.Millisecond

var zmqTypes = map[string]zmq4.Type{
	"pair": zmq4.PAIR,
	"pub":  zmq4.PUB,
	"sub":  zmq4.SUB,
	"req":  zmq4.REQ,
	"rep":  zmq4.REP,
	"push": zmq4.PUSH,
	"pull": zmq4.PULL,
}

func parseZMQType(name string) (zmq4.Type, error) {
	t, ok := zmqTypes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown zmq socket type %q", name)
	}
	return t, nil
}

type zmqSender interface {
	SendBytes(data []byte, flags zmq4.Flag) (int, error)
}

type zmqReceiver interface {
	RecvMessageBytes(flags zmq4.Flag) ([][]byte, error)
}

// toZMQ forwards every gosp message as a single frame.
func toZMQ(ctx context.Context, src *gosp.Socket, dst zmqSender, logger *zap.Logger) error {
	for {
		m, err := src.RecvMsgContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if _, err := dst.SendBytes(m.Body, 0); err != nil {
			return fmt.Errorf("zmq send: %w", err)
		}
		logger.Debug("forwarded", zap.String("direction", "sp->zmq"), zap.Int("bytes", len(m.Body)))
	}
}

// toSP forwards zmq messages, joining multipart frames into one body.
func toSP(ctx context.Context, src zmqReceiver, dst *gosp.Socket, logger *zap.Logger) error {
	for ctx.Err() == nil {
		frames, err := src.RecvMessageBytes(0)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
				continue
			}
			return fmt.Errorf("zmq recv: %w", err)
		}

		body := joinFrames(frames)
		if err := dst.SendMsgContext(ctx, gosp.NewMessage(body)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		logger.Debug("forwarded", zap.String("direction", "zmq->sp"), zap.Int("bytes", len(body)))
	}
	return nil
}

func joinFrames(frames [][]byte) []byte {
	if len(frames) == 1 {
		return frames[0]
	}
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
