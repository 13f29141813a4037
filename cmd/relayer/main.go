package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dablocksplug-source/theblock-sub000/internal/config"
)

func main() {
	config.LoadDotEnv()

	root := &cobra.Command{
		Use:          "relayer",
		Short:        "Gasless purchase relayer and activity indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the relay and feed API and run the sync loop",
		RunE:  runServe,
	}
	addCommonFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("relayer-key", "", "hex private key of the relayer account")
	serveCmd.Flags().String("token", "", "settlement token address (enables the permit flow)")
	serveCmd.Flags().String("token-name", "", "EIP-712 name of the token, read from chain when empty")
	serveCmd.Flags().String("token-version", "1", "EIP-712 version of the token")
	serveCmd.Flags().String("domain-tag", "PURCHASE", "tag prefixed to the authorization digest")
	serveCmd.Flags().String("redis-addr", "", "Redis address for shared rate limits, in-memory when empty")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database")
	serveCmd.Flags().Duration("rate-limit-window", time.Minute, "rate limit window")
	serveCmd.Flags().Int("rate-limit-max", 10, "requests per client per window")
	serveCmd.Flags().Duration("sync-interval", 15*time.Second, "interval between scheduled sync passes")
	serveCmd.Flags().Uint64("warm-window", 50, "blocks covered by the sync scheduled after a relay")
	serveCmd.Flags().Duration("warm-delay", 4*time.Second, "delay before the sync scheduled after a relay")
	serveCmd.Flags().Int("feed-max-limit", 100, "maximum page size of feed endpoints")
	serveCmd.Flags().String("admin-token", "", "bearer token required by /admin endpoints")
	serveCmd.Flags().StringSlice("trusted-proxies", nil, "proxy IPs or CIDRs allowed to set X-Forwarded-For")
	root.AddCommand(serveCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		RunE:  runSync,
	}
	addCommonFlags(syncCmd.Flags())
	root.AddCommand(syncCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check relayer identity, RPC and store connectivity",
		RunE:  runCheck,
	}
	addCommonFlags(checkCmd.Flags())
	checkCmd.Flags().String("relayer-key", "", "hex private key of the relayer account")
	root.AddCommand(checkCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "JSON-RPC URL")
	flags.Float64("rpc-rps", 10, "outbound RPC requests per second, 0 disables throttling")
	flags.String("contract", "", "market contract address")
	flags.String("store", "", "ledger store: memory or postgres (postgres when pg-dsn is set)")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.Uint64("sync-lookback", 5000, "blocks behind head covered by a pass")
	flags.Uint64("sync-batch-size", 2000, "blocks per eth_getLogs request")
	flags.Uint64("confirmations", 0, "blocks behind head treated as not yet final")
	flags.Uint64("start-block", 0, "first block ever synced")
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Duration("rpc-timeout", 15*time.Second, "timeout of a single RPC call")
	flags.Duration("store-timeout", 10*time.Second, "timeout of a single store call")
	flags.String("archive", "", "optional JSONL file receiving ingested events")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
