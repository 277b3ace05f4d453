package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"txcorpus/internal/application"
	"txcorpus/internal/config"
	"txcorpus/internal/domain"
	"txcorpus/internal/infrastructure/cache"
	"txcorpus/internal/infrastructure/ethrpc"
	"txcorpus/internal/infrastructure/kafka"
	"txcorpus/internal/infrastructure/logging"
	"txcorpus/internal/infrastructure/mysql"
	"txcorpus/internal/infrastructure/sqlite"
	"txcorpus/internal/infrastructure/storage"
	"txcorpus/internal/infrastructure/telemetry"
	"txcorpus/internal/output"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.LoadFromEnv(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "config error: %v\n", err)
		return 1
	}

	logCloser, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(stderr, "logger init error: %v\n", err)
		return 1
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	format, known := output.ParseFormat(cfg.OutputFormat)
	if !known {
		slog.Warn("unknown output format, using simple", "format", cfg.OutputFormat)
	}

	shutdownTracing, err := telemetry.InitTracer(ctx, telemetry.TracingConfig{
		ServiceName:    "txcorpus-fetcher",
		ServiceVersion: version,
		Endpoint:       cfg.OtelEndpoint,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		slog.Warn("tracing disabled", "err", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("tracing shutdown error", "err", err)
		}
	}()

	rpcClient, err := ethrpc.NewClient(ethrpc.Config{
		URL:     cfg.RPCURL,
		Timeout: cfg.RPCTimeout,
	})
	if err != nil {
		slog.Error("rpc error", "err", err)
		return 1
	}
	defer rpcClient.Close()

	sinks, corpusCache, err := openSinks(cfg)
	if err != nil {
		slog.Error("sink error", "err", err)
		return 1
	}
	defer sinks.Close()

	query := domain.RangeQuery{
		StartBlock:    cfg.StartBlock,
		EndBlock:      cfg.EndBlock,
		TargetAddress: cfg.TargetContract,
		BatchSize:     cfg.BatchSize,
		MaxConcurrent: cfg.MaxConcurrent,
	}
	if cfg.EndAtLatest {
		latest, err := rpcClient.LatestBlockNumber(ctx)
		if err != nil {
			slog.Error("latest block error", "err", err)
			return 1
		}
		query.EndBlock = latest
	}

	slog.Info("txfetcher started",
		"version", version,
		"commit", commit,
		"build_time", buildTime,
		"rpc", cfg.RPCURL,
		"target", query.TargetAddress,
		"start", query.StartBlock,
		"end", query.EndBlock,
		"format", format,
	)

	result, cached := loadCached(ctx, corpusCache, query)
	if !cached {
		fetcher, err := application.NewRangeFetcher(rpcClient, application.FetcherOpts{
			Observer: newProgressObserver(query),
		})
		if err != nil {
			slog.Error("fetcher error", "err", err)
			return 1
		}
		result, err = fetcher.FetchRange(ctx, query)
		if err != nil {
			slog.Error("fetch aborted", "err", err)
			return 1
		}
	}

	if err := output.WriteFramed(stdout, output.Encode(result.Transactions, format)); err != nil {
		slog.Error("write output error", "err", err)
		return 1
	}

	if cached || sinks.Len() == 0 {
		return 0
	}
	if err := sinks.StoreCorpus(ctx, domain.Corpus{Query: query, Result: result}); err != nil {
		slog.Error("corpus sink error", "err", err)
		return 1
	}
	return 0
}

// openSinks connects every configured corpus sink. The redis store is also
// returned on its own for cache lookups.
func openSinks(cfg config.Config) (*storage.Fanout, *cache.Store, error) {
	var (
		sinks       []application.CorpusSink
		corpusCache *cache.Store
	)
	fail := func(err error) (*storage.Fanout, *cache.Store, error) {
		_ = storage.NewFanout(sinks...).Close()
		return nil, nil, err
	}

	if cfg.SQLitePath != "" {
		repo, err := sqlite.NewRepository(cfg.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("sqlite: %w", err))
		}
		sinks = append(sinks, repo)
	}
	if cfg.DBDSN != "" {
		repo, err := mysql.NewRepository(cfg.DBDSN)
		if err != nil {
			return fail(fmt.Errorf("mysql: %w", err))
		}
		sinks = append(sinks, repo)
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			return fail(fmt.Errorf("kafka: %w", err))
		}
		sinks = append(sinks, producer)
	}
	if cfg.RedisAddr != "" {
		store, err := cache.NewStore(cache.Config{Addr: cfg.RedisAddr, TTL: cfg.CacheTTL})
		if err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		corpusCache = store
		sinks = append(sinks, store)
	}
	return storage.NewFanout(sinks...), corpusCache, nil
}

func loadCached(ctx context.Context, store *cache.Store, query domain.RangeQuery) (domain.RangeResult, bool) {
	if store == nil {
		return domain.RangeResult{}, false
	}
	result, ok, err := store.LoadCorpus(ctx, query)
	if err != nil {
		slog.Warn("corpus cache lookup failed", "err", err)
		return domain.RangeResult{}, false
	}
	if ok {
		slog.Info("corpus cache hit", "transactions", result.TransactionsFound)
	}
	return result, ok
}

type progressObserver struct {
	total uint64
	done  uint64
}

func newProgressObserver(query domain.RangeQuery) *progressObserver {
	return &progressObserver{total: query.Blocks()}
}

func (p *progressObserver) OnBatchProcessed(fromBlock, toBlock uint64, found, failed int) {
	p.done += toBlock - fromBlock + 1
	slog.Info("batch processed",
		"from", fromBlock,
		"to", toBlock,
		"found", found,
		"failed", failed,
		"progress", fmt.Sprintf("%d/%d", p.done, p.total),
	)
}
