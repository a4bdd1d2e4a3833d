package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"teleop-bridge/internal/config"
	"teleop-bridge/internal/logging"
	"teleop-bridge/internal/teleop"
)

type options struct {
	configPath   string
	overrides    config.Overrides
	cmdVelTopic  string
	rosoutTopic  string
	angularScale float64
	linearScale  float64
	logLevel     string
	logFile      string
}

// parseFlags parses args. It returns pflag.ErrHelp after printing usage to
// stderr when help was requested.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("teleop", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.overrides.Mode, "mode", "m", "", "session mode: peer or client")
	flagSet.StringSliceVarP(&opts.overrides.Connect, "connect", "e", nil, "endpoints to connect to, e.g. tcp/10.0.0.2:7447/p2p/<id>")
	flagSet.StringSliceVarP(&opts.overrides.Listen, "listen", "l", nil, "endpoints to listen on")
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "transport configuration file (JSON with comments, or YAML)")
	flagSet.BoolVar(&opts.overrides.NoMulticast, "no-multicast-scouting", false, "disable multicast peer discovery")
	flagSet.StringVar(&opts.cmdVelTopic, "cmd_vel", teleop.DefaultCmdVelTopic, "topic velocity commands are published on")
	flagSet.StringVar(&opts.rosoutTopic, "rosout", teleop.DefaultRosoutTopic, "topic log records are read from")
	flagSet.Float64VarP(&opts.angularScale, "angular-scale", "a", teleop.DefaultScale, "angular velocity for left and right")
	flagSet.Float64VarP(&opts.linearScale, "linear-scale", "x", teleop.DefaultScale, "linear velocity for up and down")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (default warn, env "+logging.EnvLevel+")")
	flagSet.StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of stderr")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "teleop drives a robot from the arrow keys and prints its /rosout log.\n\nUsage:\n  teleop [flags]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if !flagSet.Changed("log-level") {
		opts.logLevel = os.Getenv(logging.EnvLevel)
	}
	return opts, nil
}

// loadConfig merges the config file and the command line and validates
// the result.
func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}
	cfg.Apply(opts.overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
