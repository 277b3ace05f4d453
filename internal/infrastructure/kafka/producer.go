package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"txcorpus/internal/domain"
	"txcorpus/internal/infrastructure/telemetry"
	"txcorpus/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTopic = "txcorpus-transactions"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes a finished corpus to Kafka: one message per
// transaction followed by a run summary, all keyed by the target address.
type Producer struct {
	writer messageWriter
	topic  string
}

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = defaultTopic
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 500 * time.Millisecond,
	}
	return &Producer{writer: writer, topic: cfg.Topic}, nil
}

func (p *Producer) Name() string {
	return "kafka"
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) StoreCorpus(ctx context.Context, corpus domain.Corpus) error {
	tracer := otel.Tracer("txcorpus/kafka")
	target := strings.ToLower(corpus.Query.TargetAddress)

	ctx, span := tracer.Start(ctx, "kafka.publish_corpus", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("topic", p.topic),
		attribute.String("target", target),
		attribute.Int("transactions", len(corpus.Result.Transactions)),
	)

	// Left empty when tracing is disabled.
	traceIDHex := ""
	if spanCtx := span.SpanContext(); spanCtx.IsValid() {
		traceIDHex = spanCtx.TraceID().String()
	}

	messages := make([]kafka.Message, 0, len(corpus.Result.Transactions)+1)
	for _, tx := range corpus.Result.Transactions {
		msg, err := p.message(ctx, streaming.Message{
			Type:             streaming.MessageTypeTransaction,
			Target:           target,
			TraceID:          traceIDHex,
			StartBlock:       corpus.Query.StartBlock,
			EndBlock:         corpus.Query.EndBlock,
			Hash:             tx.Hash,
			From:             tx.From,
			To:               tx.To,
			Value:            tx.Value,
			Data:             tx.Data,
			BlockNumber:      tx.BlockNumber,
			TransactionIndex: tx.TransactionIndex,
			GasPrice:         tx.GasPrice,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		messages = append(messages, msg)
	}

	summary, err := p.message(ctx, streaming.Message{
		Type:            streaming.MessageTypeRunSummary,
		Target:          target,
		TraceID:         traceIDHex,
		StartBlock:      corpus.Query.StartBlock,
		EndBlock:        corpus.Query.EndBlock,
		BlocksSucceeded: corpus.Result.BlocksSucceeded,
		BlocksFailed:    corpus.Result.BlocksFailed,
		FailedBlocks:    corpus.Result.FailedBlocks,
		Transactions:    corpus.Result.TransactionsFound,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	messages = append(messages, summary)

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *Producer) message(ctx context.Context, msg streaming.Message) (kafka.Message, error) {
	payload, err := streaming.Encode(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	headers := make([]kafka.Header, 0, 2)
	telemetry.InjectKafkaHeaders(ctx, &headers)
	return kafka.Message{
		Topic:   p.topic,
		Key:     []byte(msg.Target),
		Value:   payload,
		Headers: headers,
	}, nil
}
