package gosp

import (
	"go.uber.org/zap"
)

// ZapBus logs every event. Failures log at warn level, the rest at debug.
type ZapBus struct {
	Logger *zap.Logger
}

func (z ZapBus) Post(ev Event) {
	if z.Logger == nil {
		return
	}

	fields := []zap.Field{
		zap.Stringer("socket", ev.Socket),
	}
	if ev.Endpoint != 0 {
		fields = append(fields, zap.Int("endpoint", ev.Endpoint))
	}
	if ev.LocalAddr != "" {
		fields = append(fields, zap.String("local", ev.LocalAddr))
	}
	if ev.RemoteAddr != "" {
		fields = append(fields, zap.String("remote", ev.RemoteAddr))
	}

	if ev.Err != nil {
		z.Logger.Warn(ev.EventType.String(), append(fields, zap.Error(ev.Err))...)
		return
	}
	z.Logger.Debug(ev.EventType.String(), fields...)
}
