package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	FamilyEVM    = "evm"
	FamilyNative = "native"
)

type RPCConfig struct {
	Host    string   `yaml:"host"`
	Timeout Duration `yaml:"timeout"`
}

type ChainConfig struct {
	ChainID            uint64     `yaml:"chain_id"`
	Family             string     `yaml:"family"`
	RPC                *RPCConfig `yaml:"rpc"`
	EndpointAddress    string     `yaml:"endpoint_address"`
	OutboxAddress      string     `yaml:"outbox_address"`
	StartBlock         uint64     `yaml:"start_block"`
	BlockConfirmations uint64     `yaml:"block_confirmations"`
	MaxBlockRangeSize  uint64     `yaml:"max_block_range_size"`
	PollInterval       Duration   `yaml:"poll_interval"`
}

type RelayConfig struct {
	PollingInterval Duration `yaml:"polling_interval"`
	MasterKeyEnv    string   `yaml:"master_key_env"`
	AdminAddress    string   `yaml:"admin_address"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	LogLevel  LogLevel                `yaml:"log_level"`
	HubChain  string                  `yaml:"hub_chain"`
	Chains    map[string]*ChainConfig `yaml:"chains"`
	Relay     *RelayConfig            `yaml:"relay"`
	DBConfig  *DBConfig               `yaml:"postgres"`
	Presenter *PresenterConfig        `yaml:"presenter"`
}

func (c *ChainConfig) IsEVM() bool {
	return c.Family == FamilyEVM
}

func (cfg *Config) validate() error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("no chains configured")
	}
	if cfg.HubChain == "" {
		return fmt.Errorf("hub_chain is not set")
	}
	hub, ok := cfg.Chains[cfg.HubChain]
	if !ok {
		return fmt.Errorf("hub_chain %q is not among configured chains", cfg.HubChain)
	}
	if hub.Family != FamilyNative {
		return fmt.Errorf("hub chain %q must use the native family", cfg.HubChain)
	}
	if cfg.Relay == nil {
		return fmt.Errorf("relay section is not set")
	}
	if cfg.Relay.PollingInterval == 0 {
		cfg.Relay.PollingInterval = Duration(5 * time.Second)
	}
	if cfg.Relay.MasterKeyEnv == "" {
		return fmt.Errorf("relay.master_key_env is not set")
	}
	seen := make(map[uint64]string, len(cfg.Chains))
	for name, chain := range cfg.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("chain %q: chain_id is not set", name)
		}
		if prev, dup := seen[chain.ChainID]; dup {
			return fmt.Errorf("chains %q and %q share chain_id %d", prev, name, chain.ChainID)
		}
		seen[chain.ChainID] = name
		switch chain.Family {
		case FamilyEVM:
			if chain.RPC == nil || chain.RPC.Host == "" {
				return fmt.Errorf("chain %q: rpc host is not set", name)
			}
			if chain.RPC.Timeout == 0 {
				chain.RPC.Timeout = Duration(30 * time.Second)
			}
			if chain.EndpointAddress == "" {
				return fmt.Errorf("chain %q: endpoint_address is not set", name)
			}
			if chain.OutboxAddress == "" {
				return fmt.Errorf("chain %q: outbox_address is not set", name)
			}
			if chain.MaxBlockRangeSize == 0 {
				chain.MaxBlockRangeSize = 1000
			}
		case FamilyNative:
		default:
			return fmt.Errorf("chain %q: unknown ledger family %q", name, chain.Family)
		}
		if chain.PollInterval == 0 {
			chain.PollInterval = cfg.Relay.PollingInterval
		}
	}
	return nil
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg := &Config{
		LogLevel: LogLevel(logrus.InfoLevel),
	}
	blob = []byte(os.ExpandEnv(string(blob)))
	if err := parseYaml(cfg, blob); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfig(blob)
}
