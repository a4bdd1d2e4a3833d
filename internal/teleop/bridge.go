// Package teleop multiplexes keyboard commands and bus log records.
package teleop

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"teleop-bridge/internal/codec"
	"teleop-bridge/internal/core/network"
	"teleop-bridge/internal/input"
)

const (
	DefaultCmdVelTopic = "/rt/turtle1/cmd_vel"
	DefaultRosoutTopic = "/rt/rosout"
	DefaultScale       = 2.0
)

// State is the lifecycle of a Bridge.
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Publisher is the part of the session the bridge writes to.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type Options struct {
	CmdVelTopic  string
	LinearScale  float64
	AngularScale float64
	// Out receives rendered log records.
	Out    io.Writer
	Logger *slog.Logger
	// Release runs once after the final stop command; main uses it to take
	// the terminal out of raw mode.
	Release func() error
}

// Bridge is the event multiplexer. A Bridge runs once.
type Bridge struct {
	pub      Publisher
	opts     Options
	logger   *slog.Logger
	renderer *Renderer
	state    atomic.Int32

	// samplesFirst alternates which source is polled first.
	samplesFirst bool
}

func NewBridge(pub Publisher, opts Options) *Bridge {
	if opts.CmdVelTopic == "" {
		opts.CmdVelTopic = DefaultCmdVelTopic
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		pub:      pub,
		opts:     opts,
		logger:   logger,
		renderer: NewRenderer(opts.Out, logger),
	}
}

func (b *Bridge) State() State {
	return State(b.state.Load())
}

type eventKind int

const (
	eventSample eventKind = iota
	eventSamplesClosed
	eventKey
	eventKeysClosed
	eventDone
)

type event struct {
	kind eventKind
	msg  network.Message
	key  input.Key
}

func sampleEvent(msg network.Message, ok bool) event {
	if !ok {
		return event{kind: eventSamplesClosed}
	}
	return event{kind: eventSample, msg: msg}
}

func keyEvent(k input.Key, ok bool) event {
	if !ok {
		return event{kind: eventKeysClosed}
	}
	return event{kind: eventKey, key: k}
}

// Run handles samples and keys until keys is closed or ctx is done, then
// publishes a zero twist and calls Release.
func (b *Bridge) Run(ctx context.Context, samples <-chan network.Message, keys <-chan input.Key) error {
	for {
		ev := b.next(ctx, samples, keys)
		switch ev.kind {
		case eventSample:
			b.renderer.Render(ev.msg.Payload)
		case eventSamplesClosed:
			b.logger.Warn("log subscription closed")
			samples = nil
		case eventKey:
			if t, ok := Twist(ev.key, b.opts.LinearScale, b.opts.AngularScale); ok {
				b.publishTwist(t)
			}
		case eventKeysClosed, eventDone:
			return b.stop()
		}
	}
}

// next waits for one event. The source whose turn it is gets a non-blocking
// poll first; the turn flips on every call so a busy source cannot starve
// the other.
func (b *Bridge) next(ctx context.Context, samples <-chan network.Message, keys <-chan input.Key) event {
	if ctx.Err() != nil {
		return event{kind: eventDone}
	}
	first := b.samplesFirst
	b.samplesFirst = !b.samplesFirst
	if first {
		select {
		case msg, ok := <-samples:
			return sampleEvent(msg, ok)
		default:
		}
	} else {
		select {
		case k, ok := <-keys:
			return keyEvent(k, ok)
		default:
		}
	}
	select {
	case msg, ok := <-samples:
		return sampleEvent(msg, ok)
	case k, ok := <-keys:
		return keyEvent(k, ok)
	case <-ctx.Done():
		return event{kind: eventDone}
	}
}

func (b *Bridge) stop() error {
	b.state.Store(int32(StateStopping))
	b.logger.Info("exit")
	b.publishTwist(codec.Twist{})

	var err error
	if b.opts.Release != nil {
		if rerr := b.opts.Release(); rerr != nil {
			err = fmt.Errorf("release terminal: %w", rerr)
		}
	}
	b.state.Store(int32(StateStopped))
	return err
}
