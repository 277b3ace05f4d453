package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidQuery = errors.New("invalid range query")

// RangeQuery describes one fetch run over [StartBlock, EndBlock].
type RangeQuery struct {
	StartBlock    uint64
	EndBlock      uint64
	TargetAddress string
	BatchSize     int
	MaxConcurrent int
}

func (q RangeQuery) Validate() error {
	if q.StartBlock > q.EndBlock {
		return fmt.Errorf("%w: start block %d is after end block %d", ErrInvalidQuery, q.StartBlock, q.EndBlock)
	}
	if q.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be at least 1, got %d", ErrInvalidQuery, q.BatchSize)
	}
	if q.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max concurrent must be at least 1, got %d", ErrInvalidQuery, q.MaxConcurrent)
	}
	if !common.IsHexAddress(q.TargetAddress) {
		return fmt.Errorf("%w: target address %q is not a hex address", ErrInvalidQuery, q.TargetAddress)
	}
	return nil
}

// Blocks returns the number of blocks covered by the query.
func (q RangeQuery) Blocks() uint64 {
	if q.StartBlock > q.EndBlock {
		return 0
	}
	return q.EndBlock - q.StartBlock + 1
}

// RangeResult aggregates the filtered transactions of a run, ordered by
// block number then transaction index, together with throughput counters.
type RangeResult struct {
	Transactions      []FilteredTransaction
	BlocksAttempted   int
	BlocksSucceeded   int
	BlocksFailed      int
	TransactionsFound int
	FailedBlocks      []uint64
	Elapsed           time.Duration
}

func (r RangeResult) BlocksPerSecond() float64 {
	return rate(r.BlocksSucceeded, r.Elapsed)
}

func (r RangeResult) TransactionsPerSecond() float64 {
	return rate(r.TransactionsFound, r.Elapsed)
}

func rate(count int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(count) / elapsed.Seconds()
}

// Corpus is a finished run handed to corpus sinks.
type Corpus struct {
	Query  RangeQuery
	Result RangeResult
}
