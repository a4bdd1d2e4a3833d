// Package config builds the transport session configuration from a config
// file and command-line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"teleop-bridge/internal/core/network"
)

const DefaultRendezvous = "teleop-bridge"

var (
	ErrInvalidMode     = errors.New("invalid session mode")
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrNoPeers         = errors.New("client mode needs a connect endpoint or multicast scouting")
	ErrClientListen    = errors.New("client mode does not listen")
)

type Endpoints struct {
	Endpoints []string `json:"endpoints" yaml:"endpoints"`
}

type Multicast struct {
	// Enabled is a pointer so an absent key keeps the default.
	Enabled    *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Rendezvous string `json:"rendezvous,omitempty" yaml:"rendezvous,omitempty"`
}

type Scouting struct {
	Multicast Multicast `json:"multicast" yaml:"multicast"`
}

type Identity struct {
	KeyFile string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
}

// Config is the transport session configuration.
type Config struct {
	Mode     string    `json:"mode,omitempty" yaml:"mode,omitempty"`
	Connect  Endpoints `json:"connect" yaml:"connect"`
	Listen   Endpoints `json:"listen" yaml:"listen"`
	Scouting Scouting  `json:"scouting" yaml:"scouting"`
	Identity Identity  `json:"identity" yaml:"identity"`
}

// Overrides carries the command-line flags that take precedence over the file.
type Overrides struct {
	Mode        string
	Connect     []string
	Listen      []string
	NoMulticast bool
}

// Default returns a peer-mode configuration with multicast scouting on.
func Default() Config {
	enabled := true
	return Config{
		Mode: string(network.ModePeer),
		Scouting: Scouting{Multicast: Multicast{
			Enabled:    &enabled,
			Rendezvous: DefaultRendezvous,
		}},
	}
}

// Load reads path over the defaults. YAML files are recognised by extension;
// everything else is parsed as JSON that may carry comments and trailing
// commas.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(raw), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Apply merges command-line overrides into cfg. Endpoints are appended.
func (c *Config) Apply(o Overrides) {
	if o.Mode != "" {
		c.Mode = o.Mode
	}
	c.Connect.Endpoints = append(c.Connect.Endpoints, o.Connect...)
	c.Listen.Endpoints = append(c.Listen.Endpoints, o.Listen...)
	if o.NoMulticast {
		disabled := false
		c.Scouting.Multicast.Enabled = &disabled
	}
}

func (c Config) MulticastEnabled() bool {
	return c.Scouting.Multicast.Enabled == nil || *c.Scouting.Multicast.Enabled
}

// Validate checks the mode and every endpoint.
func (c Config) Validate() error {
	mode := network.Mode(c.Mode)
	if mode != network.ModePeer && mode != network.ModeClient {
		return fmt.Errorf("%w %q: want %q or %q", ErrInvalidMode, c.Mode, network.ModePeer, network.ModeClient)
	}
	if mode == network.ModeClient && len(c.Listen.Endpoints) > 0 {
		return fmt.Errorf("%w: drop listen endpoints %v or use peer mode", ErrClientListen, c.Listen.Endpoints)
	}
	for _, e := range c.Listen.Endpoints {
		if _, err := network.ParseEndpoint(e); err != nil {
			return fmt.Errorf("%w: listen: %v", ErrInvalidEndpoint, err)
		}
	}
	for _, e := range c.Connect.Endpoints {
		if _, err := network.PeerInfo(e); err != nil {
			return fmt.Errorf("%w: connect: %v", ErrInvalidEndpoint, err)
		}
	}
	if mode == network.ModeClient && len(c.Connect.Endpoints) == 0 && !c.MulticastEnabled() {
		return ErrNoPeers
	}
	return nil
}

// SessionOptions converts the configuration into libp2p session options.
func (c Config) SessionOptions(logger *slog.Logger) network.Libp2pOptions {
	rendezvous := c.Scouting.Multicast.Rendezvous
	if rendezvous == "" {
		rendezvous = DefaultRendezvous
	}
	return network.Libp2pOptions{
		Mode:            network.Mode(c.Mode),
		ListenAddrs:     append([]string(nil), c.Listen.Endpoints...),
		Connect:         append([]string(nil), c.Connect.Endpoints...),
		Rendezvous:      rendezvous,
		EnableMDNS:      c.MulticastEnabled(),
		IdentityKeyFile: c.Identity.KeyFile,
		Logger:          logger,
	}
}
