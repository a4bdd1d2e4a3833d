package network

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
)

// Mode selects how the session takes part in the network.
type Mode string

const (
	// ModePeer listens for inbound connections and dials connect endpoints.
	ModePeer Mode = "peer"
	// ModeClient only dials.
	ModeClient Mode = "client"
)

const (
	defaultListenAddr = "/ip4/0.0.0.0/tcp/0"
	// DefaultFlushWindow is how long Close waits after the last Publish so
	// gossipsub can hand the message to its peers.
	DefaultFlushWindow = 200 * time.Millisecond
)

// Libp2pOptions configures the libp2p session.
type Libp2pOptions struct {
	Mode            Mode
	ListenAddrs     []string
	Connect         []string
	Rendezvous      string
	EnableMDNS      bool
	IdentityKeyFile string
	// FlushWindow overrides DefaultFlushWindow. Negative disables the wait.
	FlushWindow time.Duration
	Logger      *slog.Logger
}

// Libp2pPubSub provides gossip-based pubsub over libp2p. Topics are joined
// lazily and kept until Close.
type Libp2pPubSub struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	host host.Host
	ps   *pubsub.PubSub
	mdns mdns.Service

	flushWindow time.Duration
	lastPublish atomic.Int64

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewLibp2pPubSub(parent context.Context, opts Libp2pOptions) (*Libp2pPubSub, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)

	var libp2pOpts []libp2p.Option
	switch opts.Mode {
	case ModeClient:
		if len(opts.ListenAddrs) > 0 {
			logger.Warn("client mode does not listen, ignoring listen endpoints", "endpoints", opts.ListenAddrs)
		}
		libp2pOpts = append(libp2pOpts, libp2p.NoListenAddrs)
	case ModePeer, "":
		listenAddrs := make([]ma.Multiaddr, 0, len(opts.ListenAddrs))
		for _, s := range opts.ListenAddrs {
			a, err := ParseEndpoint(s)
			if err != nil {
				cancel()
				return nil, fmt.Errorf("listen endpoint: %w", err)
			}
			listenAddrs = append(listenAddrs, a)
		}
		if len(listenAddrs) == 0 {
			a, _ := ma.NewMultiaddr(defaultListenAddr)
			listenAddrs = append(listenAddrs, a)
		}
		libp2pOpts = append(libp2pOpts, libp2p.ListenAddrs(listenAddrs...))
	default:
		cancel()
		return nil, fmt.Errorf("unknown session mode %q", opts.Mode)
	}

	if opts.IdentityKeyFile != "" {
		key, err := loadOrCreateIdentityKey(opts.IdentityKeyFile)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("load identity key: %w", err)
		}
		libp2pOpts = append(libp2pOpts, libp2p.Identity(key))
	}

	h, err := libp2p.New(libp2pOpts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	p := &Libp2pPubSub{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		host:   h,
		ps:     ps,
		topics: make(map[string]*pubsub.Topic),

		flushWindow: opts.FlushWindow,
	}
	if p.flushWindow == 0 {
		p.flushWindow = DefaultFlushWindow
	}

	if opts.EnableMDNS {
		p.mdns = mdns.NewMdnsService(h, opts.Rendezvous, &mdnsNotifee{host: h, logger: logger})
		if err := p.mdns.Start(); err != nil {
			logger.Warn("mdns start failed", "error", err)
		}
	}

	for _, raw := range opts.Connect {
		info, err := PeerInfo(raw)
		if err != nil {
			logger.Warn("skip connect endpoint", "endpoint", raw, "error", err)
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			logger.Warn("connect failed", "peer", info.ID, "error", err)
		} else {
			logger.Info("connected", "peer", info.ID)
		}
	}

	return p, nil
}

func (p *Libp2pPubSub) Publish(topic string, payload []byte) error {
	t, err := p.getOrJoinTopic(topic)
	if err != nil {
		return err
	}
	if err := t.Publish(p.ctx, payload); err != nil {
		return err
	}
	p.lastPublish.Store(time.Now().UnixNano())
	return nil
}

func (p *Libp2pPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	t, err := p.getOrJoinTopic(topic)
	if err != nil {
		return nil, nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Message, subscriberBuffer)
	subCtx, subCancel := context.WithCancel(p.ctx)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(subCtx)
			if err != nil {
				return
			}
			select {
			case out <- Message{Topic: topic, Payload: append([]byte(nil), msg.Data...)}:
			default:
				p.logger.Debug("subscriber lagging, sample dropped", "topic", topic)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			subCancel()
			sub.Cancel()
		})
	}
	return out, cancel, nil
}

// Close shuts the session down. Publish only queues the message in the
// gossipsub event loop, so Close first waits out the flush window measured
// from the last Publish.
func (p *Libp2pPubSub) Close() error {
	p.waitFlush()
	p.cancel()
	if p.mdns != nil {
		_ = p.mdns.Close()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		_ = t.Close()
	}
	return p.host.Close()
}

func (p *Libp2pPubSub) waitFlush() {
	last := p.lastPublish.Load()
	if last == 0 || p.flushWindow <= 0 {
		return
	}
	wait := p.flushWindow - time.Since(time.Unix(0, last))
	if wait <= 0 {
		return
	}
	time.Sleep(wait)
}

func (p *Libp2pPubSub) PeerID() string {
	return p.host.ID().String()
}

// ListenAddrs returns dialable addresses, each suffixed with this peer's id
// so they can be passed verbatim to another bridge's --connect.
func (p *Libp2pPubSub) ListenAddrs() []string {
	out := make([]string, 0, len(p.host.Addrs()))
	for _, addr := range p.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", addr.String(), p.host.ID().String()))
	}
	return out
}

func (p *Libp2pPubSub) ConnectedPeers() []string {
	peers := p.host.Network().Peers()
	out := make([]string, 0, len(peers))
	for _, pid := range peers {
		out = append(out, pid.String())
	}
	return out
}

func (p *Libp2pPubSub) getOrJoinTopic(name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t, nil
	}
	t, err := p.ps.Join(name)
	if err != nil {
		return nil, fmt.Errorf("join topic %q: %w", name, err)
	}
	p.topics[name] = t
	return t, nil
}

type mdnsNotifee struct {
	host   host.Host
	logger *slog.Logger
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(context.Background(), info); err != nil {
		n.logger.Warn("mdns connect failed", "peer", info.ID, "error", err)
		return
	}
	n.logger.Info("mdns peer connected", "peer", info.ID)
}

func loadOrCreateIdentityKey(path string) (crypto.PrivKey, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		key, err := crypto.UnmarshalPrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("unmarshal private key: %w", err)
		}
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir key dir: %w", err)
	}
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	return key, nil
}
