package network

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

var ErrEndpoint = errors.New("invalid endpoint")

// ParseEndpoint accepts either a multiaddr ("/ip4/10.0.0.2/tcp/7447") or a
// locator ("tcp/10.0.0.2:7447", "udp/[::1]:7447", "tcp/robot.local:7447"),
// each optionally followed by "/p2p/<peer-id>". Locators over udp map to
// QUIC v1.
func ParseEndpoint(s string) (ma.Multiaddr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrEndpoint)
	}
	if strings.HasPrefix(s, "/") {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrEndpoint, s, err)
		}
		return a, nil
	}

	proto, rest, ok := strings.Cut(s, "/")
	if !ok {
		return nil, fmt.Errorf("%w %q: expected <proto>/<host>:<port>", ErrEndpoint, s)
	}
	hostPort, suffix := rest, ""
	if i := strings.Index(rest, "/p2p/"); i >= 0 {
		hostPort, suffix = rest[:i], rest[i:]
	}
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrEndpoint, s, err)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return nil, fmt.Errorf("%w %q: bad port %q", ErrEndpoint, s, port)
	}

	var b strings.Builder
	switch ip := net.ParseIP(host); {
	case ip == nil:
		if host == "" {
			return nil, fmt.Errorf("%w %q: missing host", ErrEndpoint, s)
		}
		b.WriteString("/dns/" + host)
	case ip.To4() != nil:
		b.WriteString("/ip4/" + ip.String())
	default:
		b.WriteString("/ip6/" + ip.String())
	}
	switch strings.ToLower(proto) {
	case "tcp":
		b.WriteString("/tcp/" + port)
	case "udp", "quic":
		b.WriteString("/udp/" + port + "/quic-v1")
	default:
		return nil, fmt.Errorf("%w %q: unsupported protocol %q", ErrEndpoint, s, proto)
	}
	b.WriteString(suffix)

	a, err := ma.NewMultiaddr(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrEndpoint, s, err)
	}
	return a, nil
}

// PeerInfo parses a connect endpoint, which must name the remote peer.
func PeerInfo(s string) (*peer.AddrInfo, error) {
	a, err := ParseEndpoint(s)
	if err != nil {
		return nil, err
	}
	info, err := peer.AddrInfoFromP2pAddr(a)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrEndpoint, s, err)
	}
	return info, nil
}
