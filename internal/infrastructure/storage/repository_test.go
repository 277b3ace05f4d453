package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"txcorpus/internal/domain"
)

type recordingSink struct {
	name   string
	err    error
	stored []domain.Corpus
	closed bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) StoreCorpus(ctx context.Context, corpus domain.Corpus) error {
	s.stored = append(s.stored, corpus)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestFanout_StoresEverywhereAndJoinsErrors(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	broken := &recordingSink{name: "broken", err: errors.New("disk full")}
	last := &recordingSink{name: "last"}
	fanout := NewFanout(ok, nil, broken, last)

	if fanout.Len() != 3 {
		t.Fatalf("expected 3 sinks, got %d", fanout.Len())
	}

	corpus := domain.Corpus{Result: domain.RangeResult{Transactions: []domain.FilteredTransaction{{Hash: "0x1"}}}}
	err := fanout.StoreCorpus(context.Background(), corpus)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !strings.Contains(err.Error(), "broken sink: disk full") {
		t.Errorf("unexpected error: %v", err)
	}
	for _, sink := range []*recordingSink{ok, broken, last} {
		if len(sink.stored) != 1 {
			t.Errorf("sink %s: expected 1 stored corpus, got %d", sink.name, len(sink.stored))
		}
	}
}

func TestFanout_Close(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	fanout := NewFanout(a, b)
	if got := fanout.Name(); got != "fanout(a,b)" {
		t.Errorf("unexpected name %q", got)
	}
	if err := fanout.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected all sinks closed")
	}
}
