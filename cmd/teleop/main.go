// teleop is a keyboard teleoperation bridge. Arrow keys become Twist
// commands on the cmd_vel topic and /rosout records are printed as they
// arrive.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/pflag"

	"teleop-bridge/internal/core/network"
	"teleop-bridge/internal/input"
	"teleop-bridge/internal/logging"
	"teleop-bridge/internal/teleop"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.Setup(level, opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Opening session...")
	// The session outlives the signal context so the final stop command can
	// still be published after SIGTERM.
	session, err := network.NewLibp2pPubSub(context.WithoutCancel(ctx), cfg.SessionOptions(logging.Subsystem(logger, "network")))
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()
	fmt.Printf("Peer %s\n", session.PeerID())
	for _, addr := range session.ListenAddrs() {
		fmt.Printf("  listening on %s\n", addr)
	}

	fmt.Printf("Subscriber on %s\n", opts.rosoutTopic)
	samples, unsubscribe, err := session.Subscribe(opts.rosoutTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", opts.rosoutTopic, err)
	}
	defer unsubscribe()

	kb, err := input.OpenKeyboard()
	if err != nil {
		return err
	}
	defer kb.Close()

	readerCtx, cancelReader := context.WithCancel(ctx)
	defer cancelReader()
	keys := input.StartReader(readerCtx, kb, logging.Subsystem(logger, "input"))

	out := io.Writer(os.Stdout)
	banner(out, "Waiting commands with arrow keys or space bar to stop. Press on ESC, 'Q' or CTRL+C to quit.")

	bridge := teleop.NewBridge(session, teleop.Options{
		CmdVelTopic:  opts.cmdVelTopic,
		LinearScale:  opts.linearScale,
		AngularScale: opts.angularScale,
		Out:          out,
		Logger:       logging.Subsystem(logger, "teleop"),
		Release:      kb.Close,
	})
	return bridge.Run(ctx, samples, keys)
}

// banner prints lines that stay readable in raw mode.
func banner(w io.Writer, lines ...string) {
	fmt.Fprintf(w, "%s\n%s", strings.Join(lines, "\n"+ansi.CursorHorizontalAbsolute(1)), ansi.CursorHorizontalAbsolute(1))
}
