package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"txcorpus/internal/domain"

	"github.com/ethereum/go-ethereum/rpc"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultMaxIdlePerHost  = 10
	defaultIdleConnTimeout = 90 * time.Second
)

// Client fetches blocks over JSON-RPC. It is safe for concurrent use; all
// calls share one pooled HTTP transport.
type Client struct {
	rpc *rpc.Client
}

type Config struct {
	URL            string
	Timeout        time.Duration
	MaxIdlePerHost int
}

// FetchError reports a failed block fetch.
type FetchError struct {
	BlockNumber uint64
	Err         error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch block %d: %v", e.BlockNumber, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

var ErrBlockNotFound = errors.New("block not found")

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rpc url is required")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid rpc url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid rpc url %q: scheme must be http or https", cfg.URL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid rpc url %q: host is required", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxIdlePerHost <= 0 {
		cfg.MaxIdlePerHost = defaultMaxIdlePerHost
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdlePerHost,
			MaxIdleConnsPerHost: cfg.MaxIdlePerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	client, err := rpc.DialOptions(context.Background(), cfg.URL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("rpc client: %w", err)
	}
	return &Client{rpc: client}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var result string
	if err := c.rpc.CallContext(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return parseHexUint(result)
}

// FetchBlock returns the block with its full transaction objects.
func (c *Client) FetchBlock(ctx context.Context, blockNumber uint64) (domain.Block, error) {
	var result *rpcBlock
	if err := c.rpc.CallContext(ctx, &result, "eth_getBlockByNumber", formatHexUint(blockNumber), true); err != nil {
		return domain.Block{}, &FetchError{BlockNumber: blockNumber, Err: err}
	}
	if result == nil {
		return domain.Block{}, &FetchError{BlockNumber: blockNumber, Err: ErrBlockNotFound}
	}

	txs := make([]domain.RawTransaction, 0, len(result.Transactions))
	for _, tx := range result.Transactions {
		txs = append(txs, domain.RawTransaction{
			Hash:             tx.Hash,
			From:             tx.From,
			To:               tx.To,
			Value:            tx.Value,
			Input:            tx.Input,
			TransactionIndex: tx.TransactionIndex,
			GasPrice:         tx.GasPrice,
		})
	}

	return domain.Block{
		Number:        blockNumber,
		RawNumber:     result.Number,
		BaseFeePerGas: result.BaseFeePerGas,
		Transactions:  txs,
	}, nil
}

type rpcBlock struct {
	Number        string           `json:"number"`
	BaseFeePerGas string           `json:"baseFeePerGas"`
	Transactions  []rpcTransaction `json:"transactions"`
}

type rpcTransaction struct {
	Hash             string  `json:"hash"`
	From             string  `json:"from"`
	To               *string `json:"to"`
	Value            string  `json:"value"`
	Input            string  `json:"input"`
	TransactionIndex string  `json:"transactionIndex"`
	GasPrice         string  `json:"gasPrice"`
}

func parseHexUint(value string) (uint64, error) {
	trimmed := strings.TrimPrefix(value, "0x")
	if trimmed == "" {
		return 0, errors.New("empty hex value")
	}
	return strconv.ParseUint(trimmed, 16, 64)
}

func formatHexUint(value uint64) string {
	return fmt.Sprintf("0x%x", value)
}
