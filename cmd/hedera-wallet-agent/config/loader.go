package config

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/constants"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/eip155"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/hedera/nodeclient"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/kvstore"
)

const (
	AppName   = constants.AppName
	EnvPrefix = "HWA"
)

// Approval modes.
const (
	ApprovalTerminal    = "terminal"
	ApprovalAPI         = "api"
	ApprovalAutoApprove = "auto-approve"
	ApprovalAutoReject  = "auto-reject"
)

type ServerSettings struct {
	Host           string
	Port           string
	Token          string
	AllowedOrigins []string
}

type RelaySettings struct {
	Endpoint string
}

type StoreSettings struct {
	Backend string
	Path    string
}

type ApprovalSettings struct {
	Mode    string
	Timeout time.Duration
}

type SessionSettings struct {
	MaxInFlight    int64
	ReceiptTimeout time.Duration
	RespondTimeout time.Duration
	DrainTimeout   time.Duration
}

type Config struct {
	Server      ServerSettings                     `mapstructure:"Server"`
	Relay       RelaySettings                      `mapstructure:"Relay"`
	Store       StoreSettings                      `mapstructure:"Store"`
	Approval    ApprovalSettings                   `mapstructure:"Approval"`
	Session     SessionSettings                    `mapstructure:"Session"`
	Chains      []eip155.Chain                     `mapstructure:"Chains"`
	LedgerNodes map[string][]nodeclient.NodeConfig `mapstructure:"LedgerNodes"`
}

// SearchPaths are the directories searched for config.yaml, lowest priority
// first.
func SearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".config", AppName),
		filepath.Join(home, "config"),
		".",
	}
}

func Load() (*Config, error) {
	return LoadFrom(SearchPaths())
}

// LoadFrom reads the embedded defaults, merges every config.yaml found in
// paths and then applies HWA_* environment overrides, e.g. HWA_SERVER_PORT.
func LoadFrom(paths []string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(EmbeddedConfigYAML)); err != nil {
		return nil, errors.Wrap(err, "read embedded config")
	}

	for _, dir := range paths {
		file := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(file); err != nil {
			continue
		}
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "merge config %s", file)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	switch c.Store.Backend {
	case kvstore.BackendMemory, kvstore.BackendFile, kvstore.BackendBadger:
	default:
		return errors.Newf("invalid Store.Backend %q (allowed: memory, file, badger)", c.Store.Backend)
	}
	if c.Store.Path == "" && c.Store.Backend != kvstore.BackendMemory {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "resolve home directory for Store.Path")
		}
		c.Store.Path = filepath.Join(home, ".local", "share", AppName, c.Store.Backend)
		if c.Store.Backend == kvstore.BackendFile {
			c.Store.Path = filepath.Join(c.Store.Path, "store.json")
		}
	}

	switch c.Approval.Mode {
	case ApprovalTerminal, ApprovalAPI, ApprovalAutoApprove, ApprovalAutoReject:
	default:
		return errors.Newf("invalid Approval.Mode %q", c.Approval.Mode)
	}

	if strings.TrimSpace(c.Relay.Endpoint) == "" {
		return errors.New("Relay.Endpoint is required")
	}

	for i, ch := range c.Chains {
		if _, err := eip155.ParseChainID(ch.ID); err != nil {
			return errors.Wrapf(err, "Chains[%d]", i)
		}
		if ch.RPCURL == "" {
			return errors.Newf("Chains[%d] %s has no rpcUrl", i, ch.ID)
		}
	}

	for network, nodes := range c.LedgerNodes {
		if _, err := nodeclient.ResolveNodes(network, nodes); err != nil {
			return errors.Wrapf(err, "LedgerNodes[%s]", network)
		}
	}
	return nil
}

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// ChainTable returns the configured chains keyed by id, or the built-in table
// when none are configured.
func (c *Config) ChainTable() map[string]eip155.Chain {
	if len(c.Chains) == 0 {
		return eip155.DefaultChains()
	}
	out := make(map[string]eip155.Chain, len(c.Chains))
	for _, ch := range c.Chains {
		out[ch.ID] = ch
	}
	return out
}

// NodesFor returns the ledger node overrides for network, if any.
func (c *Config) NodesFor(network string) []nodeclient.NodeConfig {
	return c.LedgerNodes[network]
}
