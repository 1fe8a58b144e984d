// Command gosp-zmqbridge forwards messages between a gosp socket and a
// libzmq socket, in one direction.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pebbe/zmq4"
	"go.uber.org/zap"

	"github.com/workspace-9/gosp"
	"github.com/workspace-9/gosp/config"
	"github.com/workspace-9/gosp/internal/observability"
)

// Options holds the command line options.
type Options struct {
	SPPattern  string
	SPAddr     string
	SPBind     bool
	ZMQType    string
	ZMQAddr    string
	ZMQBind    bool
	ToZMQ      bool
	ConfigPath string
}

// ParseFlags parses args.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("gosp-zmqbridge", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.SPPattern, "sp-pattern", "pull", "Pattern of the gosp socket")
	fs.StringVar(&opts.SPAddr, "sp-addr", "tcp://127.0.0.1:5560", "Address of the gosp socket")
	fs.BoolVar(&opts.SPBind, "sp-bind", true, "Bind the gosp socket instead of connecting")
	fs.StringVar(&opts.ZMQType, "zmq-type", "push", "Type of the zmq socket")
	fs.StringVar(&opts.ZMQAddr, "zmq-addr", "tcp://127.0.0.1:5561", "Address of the zmq socket")
	fs.BoolVar(&opts.ZMQBind, "zmq-bind", true, "Bind the zmq socket instead of connecting")
	fs.BoolVar(&opts.ToZMQ, "to-zmq", true, "Forward gosp to zmq; false forwards zmq to gosp")
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file for log and socket settings")
	_ = fs.Parse(args)
	return opts
}

func main() {
	opts := ParseFlags(os.Args[1:])

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, cfg, logger); err != nil {
		logger.Error("bridge stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts Options, cfg *config.Config, logger *zap.Logger) error {
	pattern, err := gosp.ParsePattern(opts.SPPattern)
	if err != nil {
		return err
	}
	zt, err := parseZMQType(opts.ZMQType)
	if err != nil {
		return err
	}

	spctx := gosp.NewContext(ctx, gosp.WithLogger(logger.Named("gosp")))
	defer spctx.Term()

	sock, err := spctx.NewSocket(pattern)
	if err != nil {
		return err
	}
	cfg.Socket.Apply(sock.Config())
	if opts.SPBind {
		_, err = sock.Bind(opts.SPAddr)
	} else {
		_, err = sock.Connect(opts.SPAddr)
	}
	if err != nil {
		return err
	}

	zs, err := zmq4.NewSocket(zt)
	if err != nil {
		return fmt.Errorf("zmq socket: %w", err)
	}
	defer zs.Close()
	if err := zs.SetLinger(0); err != nil {
		return err
	}
	if err := zs.SetRcvtimeo(pollInterval); err != nil {
		return err
	}
	if zt == zmq4.SUB {
		if err := zs.SetSubscribe(""); err != nil {
			return err
		}
	}
	if opts.ZMQBind {
		err = zs.Bind(opts.ZMQAddr)
	} else {
		err = zs.Connect(opts.ZMQAddr)
	}
	if err != nil {
		return fmt.Errorf("zmq endpoint %s: %w", opts.ZMQAddr, err)
	}

	logger.Info("bridge running",
		zap.Stringer("pattern", pattern), zap.String("sp", opts.SPAddr),
		zap.String("zmq_type", opts.ZMQType), zap.String("zmq", opts.ZMQAddr),
		zap.Bool("to_zmq", opts.ToZMQ),
	)
	if opts.ToZMQ {
		return toZMQ(ctx, sock, zs, logger)
	}
	return toSP(ctx, zs, sock, logger)
}
