package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"txcorpus/internal/domain"
)

// CorpusSink receives the finished corpus of a run.
type CorpusSink interface {
	Name() string
	StoreCorpus(ctx context.Context, corpus domain.Corpus) error
}

// PublishCorpus hands the corpus to every sink. A failing sink does not stop
// the others; all failures are returned joined.
func PublishCorpus(ctx context.Context, corpus domain.Corpus, sinks ...CorpusSink) error {
	var errs []error
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		start := time.Now()
		if err := sink.StoreCorpus(ctx, corpus); err != nil {
			errs = append(errs, fmt.Errorf("%s sink: %w", sink.Name(), err))
			continue
		}
		slog.Info("corpus stored",
			"sink", sink.Name(),
			"transactions", len(corpus.Result.Transactions),
			"duration", time.Since(start),
		)
	}
	return errors.Join(errs...)
}
