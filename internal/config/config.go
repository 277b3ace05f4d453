package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LatestBlock is the --end-block value that resolves to the chain head.
const LatestBlock = "latest"

type Config struct {
	RPCURL         string
	RPCTimeout     time.Duration
	TargetContract string
	StartBlock     uint64
	EndBlock       uint64
	EndAtLatest    bool
	OutputFormat   string
	BatchSize      int
	MaxConcurrent  int

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	OtelEndpoint     string
	TraceSampleRatio float64

	SQLitePath   string
	DBDSN        string
	RedisAddr    string
	CacheTTL     time.Duration
	KafkaBrokers []string
	KafkaTopic   string
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

// Load parses command-line args. Each flag defaults to its environment
// variable, so either may supply a required value. Parse errors wrap
// flag.ErrHelp when help was requested.
func Load(args []string, source EnvSource, output io.Writer) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}
	if output == nil {
		output = io.Discard
	}

	fs := flag.NewFlagSet("txfetcher", flag.ContinueOnError)
	fs.SetOutput(output)

	var (
		cfg        Config
		startBlock string
		endBlock   string
	)
	fs.StringVar(&cfg.RPCURL, "rpc-url", envString(source, "RPC_URL", ""), "RPC endpoint URL")
	fs.StringVar(&cfg.TargetContract, "target-contract", envString(source, "TARGET_CONTRACT", ""), "contract address to filter transactions for")
	fs.StringVar(&startBlock, "start-block", envString(source, "START_BLOCK", ""), "first block of the range (inclusive)")
	fs.StringVar(&endBlock, "end-block", envString(source, "END_BLOCK", ""), "last block of the range (inclusive), or \"latest\"")
	fs.StringVar(&cfg.OutputFormat, "output-format", envString(source, "OUTPUT_FORMAT", "simple"), "output format (simple, json)")

	batchSize, err := envInt(source, "BATCH_SIZE", 10)
	if err != nil {
		return Config{}, err
	}
	maxConcurrent, err := envInt(source, "MAX_CONCURRENT", 5)
	if err != nil {
		return Config{}, err
	}
	rpcTimeout, err := envDuration(source, "RPC_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.BatchSize, "batch-size", batchSize, "blocks per batch")
	fs.IntVar(&cfg.MaxConcurrent, "max-concurrent", maxConcurrent, "maximum concurrent block fetches")
	fs.DurationVar(&cfg.RPCTimeout, "rpc-timeout", rpcTimeout, "timeout for a single RPC request")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if strings.TrimSpace(cfg.RPCURL) == "" {
		return Config{}, errors.New("--rpc-url is required")
	}
	cfg.TargetContract = strings.TrimSpace(cfg.TargetContract)
	if cfg.TargetContract == "" {
		return Config{}, errors.New("--target-contract is required")
	}
	if !common.IsHexAddress(cfg.TargetContract) {
		return Config{}, fmt.Errorf("invalid --target-contract %q: not a hex address", cfg.TargetContract)
	}
	if cfg.StartBlock, err = parseBlock("--start-block", startBlock); err != nil {
		return Config{}, err
	}
	if strings.EqualFold(strings.TrimSpace(endBlock), LatestBlock) {
		cfg.EndAtLatest = true
	} else {
		if cfg.EndBlock, err = parseBlock("--end-block", endBlock); err != nil {
			return Config{}, err
		}
		if cfg.StartBlock > cfg.EndBlock {
			return Config{}, fmt.Errorf("--start-block %d is after --end-block %d", cfg.StartBlock, cfg.EndBlock)
		}
	}
	if cfg.BatchSize < 1 {
		return Config{}, fmt.Errorf("--batch-size must be at least 1, got %d", cfg.BatchSize)
	}
	if cfg.MaxConcurrent < 1 {
		return Config{}, fmt.Errorf("--max-concurrent must be at least 1, got %d", cfg.MaxConcurrent)
	}
	if cfg.RPCTimeout <= 0 {
		return Config{}, fmt.Errorf("--rpc-timeout must be positive, got %s", cfg.RPCTimeout)
	}

	if err := loadAmbient(source, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadAmbient(source EnvSource, cfg *Config) error {
	var err error
	cfg.LogLevel = envString(source, "LOG_LEVEL", "info")
	cfg.LogFile = strings.TrimSpace(envString(source, "LOG_FILE", ""))
	if cfg.LogMaxSizeMB, err = envInt(source, "LOG_MAX_SIZE_MB", 100); err != nil {
		return err
	}
	if cfg.LogMaxBackups, err = envInt(source, "LOG_MAX_BACKUPS", 3); err != nil {
		return err
	}
	if cfg.LogMaxAgeDays, err = envInt(source, "LOG_MAX_AGE_DAYS", 28); err != nil {
		return err
	}

	cfg.OtelEndpoint = strings.TrimSpace(envString(source, "OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	if cfg.TraceSampleRatio, err = envFloat(source, "TRACE_SAMPLE_RATIO", 1); err != nil {
		return err
	}

	cfg.SQLitePath = strings.TrimSpace(envString(source, "SQLITE_PATH", ""))
	cfg.DBDSN = strings.TrimSpace(envString(source, "DB_DSN", ""))
	cfg.RedisAddr = strings.TrimSpace(envString(source, "REDIS_ADDR", ""))
	if cfg.CacheTTL, err = envDuration(source, "CACHE_TTL", 24*time.Hour); err != nil {
		return err
	}
	cfg.KafkaBrokers = parseList(envString(source, "KAFKA_BROKERS", ""))
	cfg.KafkaTopic = envString(source, "KAFKA_TOPIC", "txcorpus-transactions")
	return nil
}

func parseBlock(name, raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return value, nil
}

func envString(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue
	}
	return raw
}

func envInt(source EnvSource, key string, defaultValue int) (int, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func envFloat(source EnvSource, key string, defaultValue float64) (float64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func envDuration(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseList(raw string) []string {
	var values []string
	for _, item := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(item); value != "" {
			values = append(values, value)
		}
	}
	return values
}
