package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"txcorpus/internal/domain"

	"github.com/alitto/pond/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type BlockSource interface {
	FetchBlock(ctx context.Context, blockNumber uint64) (domain.Block, error)
}

type FetchObserver interface {
	OnBatchProcessed(fromBlock, toBlock uint64, found, failed int)
}

type FetcherOpts struct {
	Observer FetchObserver
}

// RangeFetcher fetches a block range batch by batch. Within a batch every
// block is fetched concurrently, and a pool shared by the whole run caps the
// number of fetches in flight.
type RangeFetcher struct {
	source   BlockSource
	observer FetchObserver
	tracer   trace.Tracer
}

var errTaskAborted = errors.New("fetch task did not complete")

func NewRangeFetcher(source BlockSource, opts FetcherOpts) (*RangeFetcher, error) {
	if source == nil {
		return nil, errors.New("block source must not be nil")
	}
	return &RangeFetcher{
		source:   source,
		observer: opts.Observer,
		tracer:   otel.Tracer("txcorpus/fetcher"),
	}, nil
}

// FetchRange fetches every block of the query and returns the transactions
// sent to the target address. Per-block failures are counted, never returned.
// The error is non-nil only for an invalid query or a cancelled context; in the
// latter case the result holds the batches completed so far.
func (f *RangeFetcher) FetchRange(ctx context.Context, q domain.RangeQuery) (domain.RangeResult, error) {
	if err := q.Validate(); err != nil {
		return domain.RangeResult{}, err
	}

	ctx, span := f.tracer.Start(ctx, "fetcher.fetch_range", trace.WithAttributes(
		attribute.Int64("range.start", int64(q.StartBlock)),
		attribute.Int64("range.end", int64(q.EndBlock)),
		attribute.Int("range.batch_size", q.BatchSize),
		attribute.Int("range.max_concurrent", q.MaxConcurrent),
		attribute.String("target", q.TargetAddress),
	))
	defer span.End()

	slog.Info("fetch started",
		"start", q.StartBlock,
		"end", q.EndBlock,
		"target", q.TargetAddress,
		"batch_size", q.BatchSize,
		"max_concurrent", q.MaxConcurrent,
	)

	started := time.Now()
	pool := pond.NewPool(q.MaxConcurrent)
	defer pool.StopAndWait()

	result := domain.RangeResult{Transactions: []domain.FilteredTransaction{}}
	batchStart := q.StartBlock
	for {
		if err := ctx.Err(); err != nil {
			result.Elapsed = time.Since(started)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}

		batchEnd := q.EndBlock
		if q.EndBlock-batchStart >= uint64(q.BatchSize) {
			batchEnd = batchStart + uint64(q.BatchSize) - 1
		}

		outcomes := f.fetchBatch(ctx, pool, batchStart, batchEnd, q.TargetAddress)
		// Outcomes of a cancelled batch are context errors, not block failures.
		if err := ctx.Err(); err != nil {
			result.Elapsed = time.Since(started)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, err
		}

		found, failed := 0, 0
		for _, outcome := range outcomes {
			result.BlocksAttempted++
			if outcome.Err != nil {
				failed++
				result.BlocksFailed++
				result.FailedBlocks = append(result.FailedBlocks, outcome.BlockNumber)
				slog.Error("block fetch failed", "block_number", outcome.BlockNumber, "error", outcome.Err)
				continue
			}
			result.BlocksSucceeded++
			if len(outcome.Transactions) > 0 {
				slog.Debug("block matched", "block_number", outcome.BlockNumber, "transactions", len(outcome.Transactions))
			}
			found += len(outcome.Transactions)
			result.Transactions = append(result.Transactions, outcome.Transactions...)
		}
		result.TransactionsFound += found

		if f.observer != nil {
			f.observer.OnBatchProcessed(batchStart, batchEnd, found, failed)
		}

		if batchEnd == q.EndBlock {
			break
		}
		batchStart = batchEnd + 1
	}

	result.Elapsed = time.Since(started)
	span.SetAttributes(
		attribute.Int("blocks.succeeded", result.BlocksSucceeded),
		attribute.Int("blocks.failed", result.BlocksFailed),
		attribute.Int("transactions.found", result.TransactionsFound),
	)
	slog.Info("fetch completed",
		"duration", result.Elapsed,
		"blocks", result.BlocksSucceeded,
		"failed", result.BlocksFailed,
		"transactions", result.TransactionsFound,
		"blocks_per_sec", fmt.Sprintf("%.2f", result.BlocksPerSecond()),
		"transactions_per_sec", fmt.Sprintf("%.2f", result.TransactionsPerSecond()),
	)
	return result, nil
}

// fetchBatch submits one task per block and waits for all of them. Each task
// writes only its own slot, so outcomes come back in block order.
func (f *RangeFetcher) fetchBatch(ctx context.Context, pool pond.Pool, fromBlock, toBlock uint64, target string) []domain.FetchOutcome {
	ctx, span := f.tracer.Start(ctx, "fetcher.fetch_batch", trace.WithAttributes(
		attribute.Int64("batch.from", int64(fromBlock)),
		attribute.Int64("batch.to", int64(toBlock)),
	))
	defer span.End()

	outcomes := make([]domain.FetchOutcome, toBlock-fromBlock+1)
	group := pool.NewGroup()
	for i := range outcomes {
		blockNumber := fromBlock + uint64(i)
		slot := &outcomes[i]
		*slot = domain.FetchOutcome{BlockNumber: blockNumber, Err: errTaskAborted}
		group.Submit(func() {
			*slot = f.fetchBlock(ctx, blockNumber, target)
		})
	}
	if err := group.Wait(); err != nil {
		slog.Error("batch task error", "from", fromBlock, "to", toBlock, "error", err)
	}
	return outcomes
}

func (f *RangeFetcher) fetchBlock(ctx context.Context, blockNumber uint64, target string) domain.FetchOutcome {
	ctx, span := f.tracer.Start(ctx, "fetcher.fetch_block", trace.WithAttributes(
		attribute.Int64("block.number", int64(blockNumber)),
	))
	defer span.End()

	block, err := f.source.FetchBlock(ctx, blockNumber)
	var txs []domain.FilteredTransaction
	if err == nil {
		txs, err = FilterTransactions(block, target)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.FetchOutcome{BlockNumber: blockNumber, Err: err}
	}
	span.SetAttributes(attribute.Int("transactions.matched", len(txs)))
	return domain.FetchOutcome{BlockNumber: blockNumber, Transactions: txs}
}
