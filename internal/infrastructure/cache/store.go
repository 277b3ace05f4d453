package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"txcorpus/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	corpusKeyPrefix = "txcorpus:corpus:"
	defaultCacheTTL = 24 * time.Hour
)

type Config struct {
	Addr string
	TTL  time.Duration
}

// Store keeps complete corpora in Redis keyed by target and block range, so
// an identical run can be answered without touching the RPC endpoint. Runs
// with failed blocks are never cached.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

type cachedCorpus struct {
	Transactions    []domain.FilteredTransaction `json:"transactions"`
	BlocksAttempted int                          `json:"blocks_attempted"`
	BlocksSucceeded int                          `json:"blocks_succeeded"`
	ElapsedMS       int64                        `json:"elapsed_ms"`
}

func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Store{client: client, ttl: cfg.TTL}, nil
}

func (s *Store) Name() string {
	return "redis"
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) StoreCorpus(ctx context.Context, corpus domain.Corpus) error {
	if corpus.Result.BlocksFailed > 0 {
		return nil
	}
	payload, err := json.Marshal(cachedCorpus{
		Transactions:    corpus.Result.Transactions,
		BlocksAttempted: corpus.Result.BlocksAttempted,
		BlocksSucceeded: corpus.Result.BlocksSucceeded,
		ElapsedMS:       corpus.Result.Elapsed.Milliseconds(),
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, corpusKey(corpus.Query), payload, s.ttl).Err()
}

// LoadCorpus returns a cached result for the query's target and range.
func (s *Store) LoadCorpus(ctx context.Context, q domain.RangeQuery) (domain.RangeResult, bool, error) {
	raw, err := s.client.Get(ctx, corpusKey(q)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RangeResult{}, false, nil
	}
	if err != nil {
		return domain.RangeResult{}, false, err
	}
	return decodeCorpus(raw)
}

func decodeCorpus(raw []byte) (domain.RangeResult, bool, error) {
	var cached cachedCorpus
	if err := json.Unmarshal(raw, &cached); err != nil {
		return domain.RangeResult{}, false, err
	}
	if cached.Transactions == nil {
		cached.Transactions = []domain.FilteredTransaction{}
	}
	return domain.RangeResult{
		Transactions:      cached.Transactions,
		BlocksAttempted:   cached.BlocksAttempted,
		BlocksSucceeded:   cached.BlocksSucceeded,
		TransactionsFound: len(cached.Transactions),
		Elapsed:           time.Duration(cached.ElapsedMS) * time.Millisecond,
	}, true, nil
}

func corpusKey(q domain.RangeQuery) string {
	var b strings.Builder
	b.Grow(len(corpusKeyPrefix) + 42 + 42)
	b.WriteString(corpusKeyPrefix)
	b.WriteString(strings.ToLower(strings.TrimSpace(q.TargetAddress)))
	b.WriteString(":")
	b.WriteString(strconv.FormatUint(q.StartBlock, 10))
	b.WriteString("-")
	b.WriteString(strconv.FormatUint(q.EndBlock, 10))
	return b.String()
}
