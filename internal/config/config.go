// Package config holds runtime configuration for the swap client. All
// tunables live here; chain constants live in the chain package.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/7flash/chainabstractionlayer/internal/backend"
	"github.com/7flash/chainabstractionlayer/internal/chain"
)

// SwapConfig holds swap timing parameters. Expirations are absolute-time
// locks; the initiator's lock must outlive the responder's so a responder
// claim always leaves the initiator time to react.
type SwapConfig struct {
	// InitiatorLockTime is how long the initiator's funds stay locked.
	InitiatorLockTime time.Duration `yaml:"initiator_lock_time"`

	// ResponderLockTime is how long the responder's funds stay locked.
	// Must be shorter than InitiatorLockTime.
	ResponderLockTime time.Duration `yaml:"responder_lock_time"`
}

// DefaultSwapConfig returns the default swap timing.
func DefaultSwapConfig() SwapConfig {
	return SwapConfig{
		InitiatorLockTime: 48 * time.Hour,
		ResponderLockTime: 24 * time.Hour,
	}
}

// Config is the full client configuration.
type Config struct {
	// Chain symbol (BTC, LTC, DOGE) and network.
	Chain   string        `yaml:"chain"`
	Network chain.Network `yaml:"network"`

	// Backend selection. When nil, the chain's default backend is used.
	Backend *backend.Config `yaml:"backend,omitempty"`

	// FeePerByte pins the fee rate in smallest unit per byte. Zero means
	// ask the backend.
	FeePerByte uint64 `yaml:"fee_per_byte"`

	// GapLimit bounds address discovery and coin-selection scans.
	GapLimit uint32 `yaml:"gap_limit"`

	// Account is the BIP44 account index.
	Account uint32 `yaml:"account"`

	// Mnemonic for the software signing device. Leave empty when a
	// hardware device is attached.
	Mnemonic string `yaml:"mnemonic,omitempty"`

	// LogLevel: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Swap SwapConfig `yaml:"swap"`
}

// Default returns the default configuration for a chain/network pair.
func Default(symbol string, network chain.Network) *Config {
	return &Config{
		Chain:    symbol,
		Network:  network,
		GapLimit: 20,
		LogLevel: "info",
		Swap:     DefaultSwapConfig(),
	}
}

// Load reads a YAML config file, applying defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default("BTC", chain.Mainnet)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if !chain.IsSupported(c.Chain) {
		return fmt.Errorf("unsupported chain: %s (supported: %v)", c.Chain, chain.List())
	}
	if c.Network != chain.Mainnet && c.Network != chain.Testnet {
		return fmt.Errorf("invalid network: %s", c.Network)
	}
	if c.GapLimit == 0 {
		return fmt.Errorf("gap_limit must be positive")
	}
	if c.Swap.InitiatorLockTime != 0 && c.Swap.ResponderLockTime != 0 &&
		c.Swap.InitiatorLockTime <= c.Swap.ResponderLockTime {
		return fmt.Errorf("initiator_lock_time must exceed responder_lock_time")
	}
	return nil
}

// BackendConfig returns the configured backend, falling back to the chain's
// default.
func (c *Config) BackendConfig() (*backend.Config, error) {
	if c.Backend != nil {
		return c.Backend, nil
	}
	def, ok := backend.DefaultConfigs()[c.Chain]
	if !ok {
		return nil, fmt.Errorf("no default backend for chain %s", c.Chain)
	}
	return def, nil
}
