package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"txcorpus/internal/application"
	"txcorpus/internal/domain"
)

// Fanout delivers a corpus to every configured sink.
type Fanout struct {
	sinks []application.CorpusSink
}

func NewFanout(sinks ...application.CorpusSink) *Fanout {
	f := &Fanout{}
	for _, sink := range sinks {
		if sink != nil {
			f.sinks = append(f.sinks, sink)
		}
	}
	return f
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Name() string {
	names := make([]string, 0, len(f.sinks))
	for _, sink := range f.sinks {
		names = append(names, sink.Name())
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

func (f *Fanout) StoreCorpus(ctx context.Context, corpus domain.Corpus) error {
	return application.PublishCorpus(ctx, corpus, f.sinks...)
}

// Close closes every sink that holds resources.
func (f *Fanout) Close() error {
	var errs []error
	for _, sink := range f.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
