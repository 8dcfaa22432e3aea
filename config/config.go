package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/calehh/dao-keeper/crypto"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel      = "info"
	DefaultListenAddress = "0.0.0.0:8080"
	DefaultGasLimit      = 1_000_000
)

var (
	// ErrMisconfigured is returned before any network call when a required
	// setting is absent.
	ErrMisconfigured     = errors.New("server_misconfigured")
	ErrInvalidRelayerKey = crypto.ErrInvalidKeyFormat
)

type LedgerConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	DAOAddress        string        `mapstructure:"dao_address"`
	ForwarderAddress  string        `mapstructure:"forwarder_address"`
	RelayerPrivateKey string        `mapstructure:"relayer_private_key"`
	ExecuteGasLimit   uint64        `mapstructure:"execute_gas_limit"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	TxTimeout         time.Duration `mapstructure:"tx_timeout"`
}

type DaemonConfig struct {
	// ScanInterval drives the built-in trigger. Zero leaves scans to GET /daemon.
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

type RelayConfig struct {
	GasLimit  uint64  `mapstructure:"gas_limit"`
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type Config struct {
	Home          string `mapstructure:"-"`
	LogLevel      string `mapstructure:"log_level"`
	ListenAddress string `mapstructure:"listen_address"`
	DBPath        string `mapstructure:"db_path"`

	Ledger LedgerConfig `mapstructure:"ledger"`
	Daemon DaemonConfig `mapstructure:"daemon"`
	Relay  RelayConfig  `mapstructure:"relay"`
}

func DefaultConfig(home string) *Config {
	if len(home) == 0 {
		home = os.ExpandEnv("$HOME/.daokeeper")
	}
	return &Config{
		Home:          home,
		LogLevel:      DefaultLogLevel,
		ListenAddress: DefaultListenAddress,
		DBPath:        filepath.Join(home, "data", "audit.db"),
		Ledger: LedgerConfig{
			ExecuteGasLimit: DefaultGasLimit,
			CallTimeout:     30 * time.Second,
			TxTimeout:       2 * time.Minute,
		},
		Relay: RelayConfig{
			GasLimit:  DefaultGasLimit,
			RateLimit: 1,
			RateBurst: 5,
		},
	}
}

func (c *Config) ConfigFile() string {
	return filepath.Join(c.Home, "config", "config.toml")
}

// envBindings keeps the variable names the web deployment already uses.
var envBindings = map[string]string{
	"ledger.rpc_url":             "RPC_URL",
	"ledger.dao_address":         "NEXT_PUBLIC_DAO_ADDRESS",
	"ledger.forwarder_address":   "NEXT_PUBLIC_FORWARDER_ADDRESS",
	"ledger.relayer_private_key": "RELAYER_PRIVATE_KEY",
}

// Load reads <home>/config/config.toml if present and overlays the
// environment. It is called once at process start.
func Load(home string) (*Config, error) {
	cfg := DefaultConfig(home)
	v := viper.New()
	v.SetConfigFile(cfg.ConfigFile())
	v.SetEnvPrefix("DAOKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env, "DAOKEEPER_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, err
		}
	}
	setDefaults(v, cfg)

	if _, err := os.Stat(cfg.ConfigFile()); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Ledger.RPCURL = strings.TrimSpace(cfg.Ledger.RPCURL)
	cfg.Ledger.DAOAddress = strings.TrimSpace(cfg.Ledger.DAOAddress)
	cfg.Ledger.ForwarderAddress = strings.TrimSpace(cfg.Ledger.ForwarderAddress)
	return cfg, nil
}

// every key has to be known to viper for AutomaticEnv to reach it on Unmarshal
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("listen_address", cfg.ListenAddress)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("ledger.rpc_url", "")
	v.SetDefault("ledger.dao_address", "")
	v.SetDefault("ledger.forwarder_address", "")
	v.SetDefault("ledger.relayer_private_key", "")
	v.SetDefault("ledger.execute_gas_limit", cfg.Ledger.ExecuteGasLimit)
	v.SetDefault("ledger.call_timeout", cfg.Ledger.CallTimeout)
	v.SetDefault("ledger.tx_timeout", cfg.Ledger.TxTimeout)
	v.SetDefault("daemon.scan_interval", cfg.Daemon.ScanInterval)
	v.SetDefault("relay.gas_limit", cfg.Relay.GasLimit)
	v.SetDefault("relay.rate_limit", cfg.Relay.RateLimit)
	v.SetDefault("relay.rate_burst", cfg.Relay.RateBurst)
}

// ValidateDaemon checks what a scan needs: RPC endpoint, DAO address and
// relayer key.
func (c *Config) ValidateDaemon() error {
	if c.Ledger.DAOAddress == "" || c.Ledger.RPCURL == "" || strings.TrimSpace(c.Ledger.RelayerPrivateKey) == "" {
		return ErrMisconfigured
	}
	if !common.IsHexAddress(c.Ledger.DAOAddress) {
		return fmt.Errorf("%w: dao address %q", ErrMisconfigured, c.Ledger.DAOAddress)
	}
	return c.validateCommon()
}

// ValidateRelay checks what the relay needs: RPC endpoint and relayer key.
// The forwarder address is optional and, when set, pins the forwarder.
func (c *Config) ValidateRelay() error {
	if c.Ledger.RPCURL == "" || strings.TrimSpace(c.Ledger.RelayerPrivateKey) == "" {
		return ErrMisconfigured
	}
	if c.Ledger.ForwarderAddress != "" && !common.IsHexAddress(c.Ledger.ForwarderAddress) {
		return fmt.Errorf("%w: forwarder address %q", ErrMisconfigured, c.Ledger.ForwarderAddress)
	}
	return c.validateCommon()
}

func (c *Config) validateCommon() error {
	if _, err := crypto.NormalizeKeyHex(c.Ledger.RelayerPrivateKey); err != nil {
		return ErrInvalidRelayerKey
	}
	if c.Ledger.CallTimeout <= 0 || c.Ledger.TxTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrMisconfigured)
	}
	return nil
}

func (c *Config) DAOAddress() common.Address {
	return common.HexToAddress(c.Ledger.DAOAddress)
}

// ForwarderAddress returns the pinned forwarder, if configured.
func (c *Config) ForwarderAddress() (common.Address, bool) {
	if c.Ledger.ForwarderAddress == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(c.Ledger.ForwarderAddress), true
}
