package main

import "flag"

// Options holds the command line options.
type Options struct {
	ConfigPath string
	LogLevel   string
}

// ParseFlags parses args.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("gosp-device", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Override log.level")
	_ = fs.Parse(args)
	return opts
}
