package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dablocksplug-source/theblock-sub000/internal/retry"
)

const EnvPrefix = "RELAYER"

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL    string
	RPCRPS    float64
	Listen    string
	Contract  string
	Token     string
	TokenName string
	TokenVer  string
	DomainTag string

	RelayerKeyHex string

	Store string
	PGDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitWindow time.Duration
	RateLimitMax    int

	SyncInterval  time.Duration
	SyncLookback  uint64
	SyncBatchSize uint64
	Confirmations uint64
	StartBlock    uint64
	WarmWindow    uint64
	WarmDelay     time.Duration

	MaxRetries   int
	RetryBackoff time.Duration
	RPCTimeout   time.Duration
	StoreTimeout time.Duration

	FeedMaxLimit int
	Archive      string
	AdminToken   string
	LogLevel     string

	TrustedProxies []string
}

// LoadDotEnv loads .env.local and then .env into the process environment.
// Variables already set are not overwritten and missing files are ignored.
func LoadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		_ = godotenv.Load(name)
	}
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("rpc-rps", 10.0)
	v.SetDefault("domain-tag", "PURCHASE")
	v.SetDefault("token-version", "1")
	v.SetDefault("redis-db", 0)
	v.SetDefault("rate-limit-window", time.Minute)
	v.SetDefault("rate-limit-max", 10)
	v.SetDefault("sync-interval", 15*time.Second)
	v.SetDefault("sync-lookback", uint64(5000))
	v.SetDefault("sync-batch-size", uint64(2000))
	v.SetDefault("confirmations", uint64(0))
	v.SetDefault("start-block", uint64(0))
	v.SetDefault("warm-window", uint64(50))
	v.SetDefault("warm-delay", 4*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("rpc-timeout", 15*time.Second)
	v.SetDefault("store-timeout", 10*time.Second)
	v.SetDefault("feed-max-limit", 100)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("relayer")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		RPCRPS:          v.GetFloat64("rpc-rps"),
		Listen:          v.GetString("listen"),
		Contract:        strings.TrimSpace(v.GetString("contract")),
		Token:           strings.TrimSpace(v.GetString("token")),
		TokenName:       v.GetString("token-name"),
		TokenVer:        v.GetString("token-version"),
		DomainTag:       v.GetString("domain-tag"),
		RelayerKeyHex:   strings.TrimSpace(v.GetString("relayer-key")),
		Store:           strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PGDSN:           v.GetString("pg-dsn"),
		RedisAddr:       v.GetString("redis-addr"),
		RedisPassword:   v.GetString("redis-password"),
		RedisDB:         v.GetInt("redis-db"),
		RateLimitWindow: v.GetDuration("rate-limit-window"),
		RateLimitMax:    v.GetInt("rate-limit-max"),
		SyncInterval:    v.GetDuration("sync-interval"),
		SyncLookback:    v.GetUint64("sync-lookback"),
		SyncBatchSize:   v.GetUint64("sync-batch-size"),
		Confirmations:   v.GetUint64("confirmations"),
		StartBlock:      v.GetUint64("start-block"),
		WarmWindow:      v.GetUint64("warm-window"),
		WarmDelay:       v.GetDuration("warm-delay"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		RPCTimeout:      v.GetDuration("rpc-timeout"),
		StoreTimeout:    v.GetDuration("store-timeout"),
		FeedMaxLimit:    v.GetInt("feed-max-limit"),
		Archive:         v.GetString("archive"),
		AdminToken:      v.GetString("admin-token"),
		LogLevel:        v.GetString("log-level"),
		TrustedProxies:  v.GetStringSlice("trusted-proxies"),
	}

	if cfg.Store == "" {
		cfg.Store = StoreMemory
		if cfg.PGDSN != "" {
			cfg.Store = StorePostgres
		}
	}

	return cfg, nil
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}
	if !common.IsHexAddress(c.Contract) {
		return fmt.Errorf("invalid contract address: %q", c.Contract)
	}
	if c.Token != "" && !common.IsHexAddress(c.Token) {
		return fmt.Errorf("invalid token address: %q", c.Token)
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.SyncBatchSize == 0 {
		return fmt.Errorf("sync-batch-size must be greater than zero")
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate-limit-max and rate-limit-window must be positive")
	}
	if c.FeedMaxLimit <= 0 {
		return fmt.Errorf("feed-max-limit must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid trusted proxy %q", proxy)
			}
		}
	}
	return nil
}

// ContractAddress returns the market contract address.
func (c Config) ContractAddress() common.Address {
	return common.HexToAddress(c.Contract)
}

// TokenAddress returns the settlement token address, if configured.
func (c Config) TokenAddress() (common.Address, bool) {
	if c.Token == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(c.Token), true
}

// RelayerKey parses the hex service signing key.
func (c Config) RelayerKey() (*ecdsa.PrivateKey, error) {
	if c.RelayerKeyHex == "" {
		return nil, fmt.Errorf("relayer-key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.RelayerKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse relayer-key: %w", err)
	}
	return key, nil
}

// RPCRetry is the retry policy for outbound chain reads.
func (c Config) RPCRetry() retry.Policy {
	return retry.Policy{MaxRetries: c.MaxRetries, BaseDelay: c.RetryBackoff, Timeout: c.RPCTimeout}
}

// StoreRetry is the retry policy for ledger store calls.
func (c Config) StoreRetry() retry.Policy {
	return retry.Policy{MaxRetries: c.MaxRetries, BaseDelay: c.RetryBackoff, Timeout: c.StoreTimeout}
}
