package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// NetworkConfig describes one JSON-RPC endpoint bound to a chain.
type NetworkConfig struct {
	ChainID uint64 `yaml:"chainId"`
	URL     string `yaml:"url"`
}

// PoolConfig describes one prize pool deployment to aggregate.
type PoolConfig struct {
	ChainID uint64 `yaml:"chainId"`
	Address string `yaml:"address"`
}

// ReaderConfig is the top-level yaml configuration file.
type ReaderConfig struct {
	Networks []NetworkConfig `yaml:"networks"`
	Pools    []PoolConfig    `yaml:"pools"`

	// Account, when set, is the address whose balances and allowances are
	// printed for every pool.
	Account string `yaml:"account,omitempty"`
}

// LoadConfig reads and validates the yaml configuration at path.
func LoadConfig(path string) (*ReaderConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ReaderConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("config: at least one network is required")
	}
	if len(cfg.Pools) == 0 {
		return nil, fmt.Errorf("config: at least one pool is required")
	}

	seen := make(map[uint64]struct{}, len(cfg.Networks))
	for _, n := range cfg.Networks {
		if n.ChainID == 0 || n.URL == "" {
			return nil, fmt.Errorf("config: network entries require chainId and url")
		}
		if _, dup := seen[n.ChainID]; dup {
			return nil, fmt.Errorf("config: duplicate network entry for chain %d", n.ChainID)
		}
		seen[n.ChainID] = struct{}{}
	}

	for _, p := range cfg.Pools {
		if !common.IsHexAddress(p.Address) {
			return nil, fmt.Errorf("config: pool address %q is not a valid address", p.Address)
		}
		if _, ok := seen[p.ChainID]; !ok {
			return nil, fmt.Errorf("config: pool %s references chain %d with no network entry", p.Address, p.ChainID)
		}
	}

	if cfg.Account != "" && !common.IsHexAddress(cfg.Account) {
		return nil, fmt.Errorf("config: account %q is not a valid address", cfg.Account)
	}

	return &cfg, nil
}
