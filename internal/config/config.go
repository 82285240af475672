// Package config defines all configuration for the clearing core. Config is
// loaded from a YAML file (default: configs/config.yaml) with sensitive
// fields overridable via ARB_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Contracts ContractsConfig `mapstructure:"contracts"`
	Orders    OrdersConfig    `mapstructure:"orders"`
	Sizer     SizerConfig     `mapstructure:"sizer"`
	Round     RoundConfig     `mapstructure:"round"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// WalletConfig holds the Ethereum wallet used to sign and submit clearing
// transactions. FlashbotRPC, when set, is a private submission endpoint
// bound to a second signer so reads still go through the public RPC.
type WalletConfig struct {
	PrivateKey  string `mapstructure:"private_key"`
	ChainID     int64  `mapstructure:"chain_id"`
	FlashbotRPC string `mapstructure:"flashbot_rpc"`
	FlashbotKey string `mapstructure:"flashbot_key"`
}

// ChainConfig holds RPC transport and memoisation tuning.
//
//   - RPCs: candidate endpoints; shuffled per round to distribute load.
//   - LPs: liquidity-provider allow-list consulted by the quote oracle.
//   - CacheTTL: how long a (token, block-bucket) eth-price memo is valid.
//   - PoolUpdateInterval: how often ./mem-cache is torn down and rebuilt.
//   - GasHeadroom: multiplier applied to estimateGas results (default 1.03).
type ChainConfig struct {
	RPCs               []string      `mapstructure:"rpc"`
	Subgraphs          []string      `mapstructure:"subgraph"`
	LPs                []string      `mapstructure:"lps"`
	CacheDir           string        `mapstructure:"cache_dir"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	PoolUpdateInterval time.Duration `mapstructure:"pool_update_interval"`
	GasHeadroom        float64       `mapstructure:"gas_headroom"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// ContractsConfig supplies the addresses and route-code version the dryrun
// stages assemble calldata against.
type ContractsConfig struct {
	ArbAddress        string `mapstructure:"arb_address"`
	OrderbookAddress  string `mapstructure:"orderbook_address"`
	RouteProcessor    string `mapstructure:"route_processor_address"`
	RouteProcessorVer string `mapstructure:"route_processor_version"` // one of 3, 3.1, 3.2, 4
	GasCoveragePct    int    `mapstructure:"gas_coverage"`            // >= 0
	MaxRatio          bool   `mapstructure:"max_ratio"`
}

// OrdersConfig selects where order records are sourced from and how they're
// filtered; ingestion itself is an external collaborator (see SPEC_FULL.md §1).
type OrdersConfig struct {
	Path             string `mapstructure:"path"`
	OrderHash        string `mapstructure:"order_hash"`
	OrderOwner       string `mapstructure:"order_owner"`
	OrderInterpreter string `mapstructure:"order_interpreter"`
	Bundle           bool   `mapstructure:"bundle"`
	Shuffle          bool   `mapstructure:"shuffle"`
}

// SizerConfig tunes the binary-search trade sizer (C6).
//
//   - Hops: H in spec.md §4.6, the number of halving iterations (default 7, max 10).
//   - Retries: R, the number of concurrently fanned-out sizers in findOppWithRetries
//     (1-3, default 3).
type SizerConfig struct {
	Hops    int `mapstructure:"hops"`
	Retries int `mapstructure:"retries"`
}

// RoundConfig controls the outer round loop (C9).
type RoundConfig struct {
	Repetitions int           `mapstructure:"repetitions"` // -1 = infinite
	Sleep       time.Duration `mapstructure:"sleep"`
	TxTimeout   time.Duration `mapstructure:"timeout"` // submit/mine deadline
}

// RiskConfig tunes internal/risk's wallet-fund cooldown: how long the round
// runner pauses after a NoWalletFund halt before attempting another round,
// with the pause scaling up across consecutive occurrences up to a cap.
type RiskConfig struct {
	WalletFundCooldown   time.Duration `mapstructure:"wallet_fund_cooldown"`
	WalletFundBackoffMax time.Duration `mapstructure:"wallet_fund_backoff_max"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the optional telemetry push server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: ARB_PRIVATE_KEY, ARB_FLASHBOT_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("ARB_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if key := os.Getenv("ARB_FLASHBOT_KEY"); key != "" {
		cfg.Wallet.FlashbotKey = key
	}
	if os.Getenv("ARB_DRY_RUN") == "true" || os.Getenv("ARB_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sizer.hops", 7)
	v.SetDefault("sizer.retries", 3)
	v.SetDefault("chain.cache_dir", "./mem-cache")
	v.SetDefault("chain.cache_ttl", 12*time.Second)
	v.SetDefault("chain.pool_update_interval", 5*time.Minute)
	v.SetDefault("chain.gas_headroom", 1.03)
	v.SetDefault("chain.timeout", 10*time.Second)
	v.SetDefault("contracts.route_processor_version", "4")
	v.SetDefault("round.repetitions", -1)
	v.SetDefault("round.sleep", 10*time.Second)
	v.SetDefault("round.timeout", 30*time.Second)
	v.SetDefault("risk.wallet_fund_cooldown", time.Minute)
	v.SetDefault("risk.wallet_fund_backoff_max", 15*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set ARB_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required")
	}
	if len(c.Chain.RPCs) == 0 {
		return fmt.Errorf("chain.rpc must list at least one endpoint")
	}
	if c.Contracts.ArbAddress == "" {
		return fmt.Errorf("contracts.arb_address is required")
	}
	if c.Contracts.OrderbookAddress == "" {
		return fmt.Errorf("contracts.orderbook_address is required")
	}
	switch c.Contracts.RouteProcessorVer {
	case "3", "3.1", "3.2", "4":
	default:
		return fmt.Errorf("contracts.route_processor_version must be one of: 3, 3.1, 3.2, 4")
	}
	if c.Contracts.GasCoveragePct < 0 {
		return fmt.Errorf("contracts.gas_coverage must be >= 0")
	}
	if c.Sizer.Hops <= 0 || c.Sizer.Hops > 10 {
		return fmt.Errorf("sizer.hops must be in [1, 10]")
	}
	if c.Sizer.Retries < 1 || c.Sizer.Retries > 3 {
		return fmt.Errorf("sizer.retries must be in [1, 3]")
	}
	return nil
}
