package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/workspace-9/gosp"
	"github.com/workspace-9/gosp/config"
	"github.com/workspace-9/gosp/errs"
	"github.com/workspace-9/gosp/metric"
)

// App owns the sockets and devices built from a configuration.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	sp       *gosp.Context
	devices  []*gosp.Device
}

// NewApp opens every configured socket and device. Nothing forwards until
// Run is called.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		sp: gosp.NewContext(ctx,
			gosp.WithLogger(logger.Named("gosp")),
			gosp.WithMetrics(metric.NewMetrics(registry)),
		),
	}

	for _, dc := range cfg.Devices {
		d, err := a.openDevice(dc)
		if err != nil {
			a.sp.Term()
			return nil, fmt.Errorf("device %q: %w", dc.Name, err)
		}
		a.devices = append(a.devices, d)
	}
	return a, nil
}

func (a *App) openDevice(dc config.DeviceConfig) (*gosp.Device, error) {
	front, err := a.openSocket(dc.Frontend)
	if err != nil {
		return nil, fmt.Errorf("frontend: %w", err)
	}
	if dc.Loopback() {
		return gosp.NewDevice(front, nil, gosp.WithDeviceName(dc.Name))
	}

	back, err := a.openSocket(dc.Backend)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}
	return gosp.NewDevice(front, back, gosp.WithDeviceName(dc.Name))
}

func (a *App) openSocket(ec config.EndpointConfig) (*gosp.Socket, error) {
	p, err := gosp.ParsePattern(ec.Pattern)
	if err != nil {
		return nil, err
	}
	s, err := a.sp.NewSocket(p, gosp.WithRaw())
	if err != nil {
		return nil, err
	}
	a.cfg.Socket.Apply(s.Config())

	for _, addr := range ec.Bind {
		if _, err := s.Bind(addr); err != nil {
			return nil, err
		}
	}
	for _, addr := range ec.Connect {
		if _, err := s.Connect(addr); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Run forwards until ctx is done or a device fails. Every socket is closed
// when it returns.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, d := range a.devices {
		g.Go(func() error {
			err := d.Run(gctx)
			if gctx.Err() != nil && errors.Is(err, errs.Terminated) {
				return nil
			}
			return err
		})
	}

	if a.cfg.Metrics.Listen != "" {
		srv := &metric.Server{Listen: a.cfg.Metrics.Listen, Path: a.cfg.Metrics.Path, Registry: a.registry}
		g.Go(func() error {
			a.logger.Info("serving metrics", zap.String("listen", srv.Listen), zap.String("path", a.cfg.Metrics.Path))
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.sp.Term()
	})

	return g.Wait()
}
