package teleop

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teleop-bridge/internal/codec"
	"teleop-bridge/internal/core/network"
	"teleop-bridge/internal/input"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	twists []codec.Twist
	trace  *[]string
	err    error
}

func (p *recordingPublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trace != nil {
		*p.trace = append(*p.trace, "publish")
	}
	tw, err := codec.UnmarshalTwist(payload)
	if err != nil {
		return err
	}
	p.topics = append(p.topics, topic)
	p.twists = append(p.twists, tw)
	return p.err
}

func (p *recordingPublisher) published() []codec.Twist {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]codec.Twist(nil), p.twists...)
}

type keySource struct {
	mu   sync.Mutex
	keys []input.Key
}

func (s *keySource) ReadKey() (input.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) == 0 {
		return input.KeyOther, io.EOF
	}
	k := s.keys[0]
	s.keys = s.keys[1:]
	return k, nil
}

func testLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func logPayload(sec int32, nsec uint32, name, msg string) []byte {
	return codec.MarshalLog(codec.Log{Stamp: codec.Time{Sec: sec, Nanosec: nsec}, Level: 20, Name: name, Msg: msg})
}

func runAsync(ctx context.Context, b *Bridge, samples <-chan network.Message, keys <-chan input.Key) <-chan error {
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, samples, keys) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("bridge did not stop")
		return nil
	}
}

func TestTwistMapping(t *testing.T) {
	tests := []struct {
		key  input.Key
		want codec.Twist
		ok   bool
	}{
		{input.KeyUp, codec.Twist{Linear: codec.Vector3{X: 2}}, true},
		{input.KeyDown, codec.Twist{Linear: codec.Vector3{X: -2}}, true},
		{input.KeyLeft, codec.Twist{Angular: codec.Vector3{Z: 3}}, true},
		{input.KeyRight, codec.Twist{Angular: codec.Vector3{Z: -3}}, true},
		{input.KeySpace, codec.Twist{}, true},
		{input.KeyQuit, codec.Twist{}, false},
		{input.KeyOther, codec.Twist{}, false},
	}
	for _, tt := range tests {
		got, ok := Twist(tt.key, 2, 3)
		assert.Equal(t, tt.ok, ok, tt.key.String())
		assert.Equal(t, tt.want, got, tt.key.String())
	}
}

func TestBridgeKeySequenceOverBus(t *testing.T) {
	bus := network.NewMemoryPubSub()
	defer bus.Close()

	cmds, cancelCmds, err := bus.Subscribe(DefaultCmdVelTopic)
	require.NoError(t, err)
	defer cancelCmds()
	samples, cancelSamples, err := bus.Subscribe(DefaultRosoutTopic)
	require.NoError(t, err)
	defer cancelSamples()

	ctx := context.Background()
	src := &keySource{keys: []input.Key{input.KeyUp, input.KeyLeft, input.KeySpace, input.KeyQuit}}
	keys := input.StartReader(ctx, src, testLogger(io.Discard))

	b := NewBridge(bus, Options{LinearScale: 2, AngularScale: 3, Logger: testLogger(io.Discard)})
	require.NoError(t, waitRun(t, runAsync(ctx, b, samples, keys)))
	assert.Equal(t, StateStopped, b.State())

	want := []codec.Twist{
		{Linear: codec.Vector3{X: 2}},
		{Angular: codec.Vector3{Z: 3}},
		{},
		{},
	}
	for i, w := range want {
		select {
		case msg := <-cmds:
			assert.Equal(t, DefaultCmdVelTopic, msg.Topic)
			assert.Len(t, msg.Payload, 4+codec.TwistBodySize)
			got, err := codec.UnmarshalTwist(msg.Payload)
			require.NoError(t, err)
			assert.Equalf(t, w, got, "publish %d", i)
		case <-time.After(time.Second):
			t.Fatalf("missing publish %d", i)
		}
	}
	select {
	case msg := <-cmds:
		t.Fatalf("unexpected extra publish %x", msg.Payload)
	default:
	}
}

func TestBridgeRendersLogs(t *testing.T) {
	out := &syncBuffer{}
	pub := &recordingPublisher{}
	samples := make(chan network.Message, 1)
	keys := make(chan input.Key)
	samples <- network.Message{Topic: DefaultRosoutTopic, Payload: logPayload(10, 500, "nav", "starting")}

	b := NewBridge(pub, Options{Out: out, Logger: testLogger(io.Discard)})
	done := runAsync(context.Background(), b, samples, keys)

	require.Eventually(t, func() bool { return out.String() != "" }, 3*time.Second, 5*time.Millisecond)
	close(keys)
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, "[10.500] [nav]: starting\n\x1b[1G", out.String())
}

func TestBridgeDiscardsMalformedLog(t *testing.T) {
	out := &syncBuffer{}
	logs := &syncBuffer{}
	samples := make(chan network.Message, 1)
	keys := make(chan input.Key)
	samples <- network.Message{Topic: DefaultRosoutTopic, Payload: []byte{0x00, 0x01, 0x00}}

	b := NewBridge(&recordingPublisher{}, Options{Out: out, Logger: testLogger(logs)})
	done := runAsync(context.Background(), b, samples, keys)

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "error decoding log")
	}, 3*time.Second, 5*time.Millisecond)
	close(keys)
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, 1, strings.Count(logs.String(), "error decoding log"))
	assert.Empty(t, out.String())
}

func TestBridgePublishFailureDoesNotStop(t *testing.T) {
	logs := &syncBuffer{}
	pub := &recordingPublisher{err: errors.New("bus down")}
	keys := make(chan input.Key, 3)
	keys <- input.KeyUp
	keys <- input.KeyDown
	close(keys)

	b := NewBridge(pub, Options{LinearScale: 1, AngularScale: 1, Logger: testLogger(logs)})
	require.NoError(t, waitRun(t, runAsync(context.Background(), b, nil, keys)))

	assert.Len(t, pub.published(), 3)
	assert.Equal(t, 3, strings.Count(logs.String(), "error writing to bus"))
	assert.Equal(t, StateStopped, b.State())
}

func TestBridgeReleaseAfterFinalPublish(t *testing.T) {
	var trace []string
	pub := &recordingPublisher{trace: &trace}
	keys := make(chan input.Key, 1)
	keys <- input.KeyRight
	close(keys)

	var stateAtRelease State
	b := NewBridge(pub, Options{LinearScale: 1, AngularScale: 1, Logger: testLogger(io.Discard)})
	b.opts.Release = func() error {
		stateAtRelease = b.State()
		trace = append(trace, "release")
		return errors.New("tty gone")
	}

	err := waitRun(t, runAsync(context.Background(), b, nil, keys))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tty gone")

	assert.Equal(t, []string{"publish", "publish", "release"}, trace)
	assert.Equal(t, StateStopping, stateAtRelease)
	assert.Equal(t, StateStopped, b.State())
	assert.Equal(t, codec.Twist{}, pub.published()[1])
}

func TestBridgeStopsOnContextCancel(t *testing.T) {
	pub := &recordingPublisher{}
	keys := make(chan input.Key)
	released := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	b := NewBridge(pub, Options{
		Logger:  testLogger(io.Discard),
		Release: func() error { close(released); return nil },
	})
	done := runAsync(ctx, b, nil, keys)
	assert.Equal(t, StateRunning, b.State())
	cancel()

	require.NoError(t, waitRun(t, done))
	<-released
	assert.Equal(t, []codec.Twist{{}}, pub.published())
}

func TestBridgeSurvivesClosedSubscription(t *testing.T) {
	logs := &syncBuffer{}
	pub := &recordingPublisher{}
	samples := make(chan network.Message)
	close(samples)
	keys := make(chan input.Key)

	b := NewBridge(pub, Options{LinearScale: 1, Logger: testLogger(logs)})
	done := runAsync(context.Background(), b, samples, keys)

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "log subscription closed")
	}, 3*time.Second, 5*time.Millisecond)
	keys <- input.KeyUp
	close(keys)
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, 1, strings.Count(logs.String(), "log subscription closed"))
	assert.Equal(t, []codec.Twist{{Linear: codec.Vector3{X: 1}}, {}}, pub.published())
}

func TestBridgeAlternatesSources(t *testing.T) {
	out := &syncBuffer{}
	pub := &recordingPublisher{}
	samples := make(chan network.Message, 50)
	for i := 0; i < cap(samples); i++ {
		samples <- network.Message{Topic: DefaultRosoutTopic, Payload: logPayload(int32(i), 0, "flood", "tick")}
	}
	keys := make(chan input.Key, 5)
	for i := 0; i < cap(keys); i++ {
		keys <- input.KeyUp
	}
	close(keys)

	b := NewBridge(pub, Options{LinearScale: 1, Out: out, Logger: testLogger(io.Discard)})
	require.NoError(t, waitRun(t, runAsync(context.Background(), b, samples, keys)))

	assert.Len(t, pub.published(), 6, "every key and the stop command are published")
	assert.Equal(t, 5, strings.Count(out.String(), "[flood]"), "sources take turns")
	assert.Len(t, samples, 45)
}
