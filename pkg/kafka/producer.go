package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producers use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	// MaxMessageBytes bounds a single message. Import jobs carry a whole page
	// of JSONL documents, so this is larger than the kafka-go default.
	MaxMessageBytes int64
}

// DefaultProducerConfig returns sensible defaults for the Kafka producer.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:         brokers,
		BatchSize:       100,
		BatchTimeout:    10 * time.Millisecond,
		MaxMessageBytes: 8 << 20,
	}
}

// Producer publishes jobs.
type Producer struct {
	writer  messageWriter
	brokers []string
	logger  *slog.Logger
}

// NewProducer creates a new Kafka producer.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		BatchBytes:   cfg.MaxMessageBytes,
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{
		writer:  w,
		brokers: cfg.Brokers,
		logger:  logger,
	}
}

// Publish sends a job to the specified Kafka topic. The job key is the
// message key, and the caller's span context is propagated in headers.
func (p *Producer) Publish(ctx context.Context, topic string, job *Job) error {
	data, err := job.Marshal()
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(job.Key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "job_type", Value: []byte(job.JobType)},
			{Key: "model", Value: []byte(job.Model)},
			{Key: "source", Value: []byte(job.Source)},
		},
	}
	if job.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "correlation_id", Value: []byte(job.CorrelationID)})
	}
	injectTraceContext(ctx, &msg)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		ProducerPublishErrors.WithLabelValues(topic).Inc()
		p.logger.ErrorContext(ctx, "failed to publish job",
			slog.String("topic", topic),
			slog.String("job_type", job.JobType),
			slog.String("model", job.Model),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("publish job to %s: %w", topic, err)
	}

	ProducerJobsPublished.WithLabelValues(topic).Inc()
	p.logger.DebugContext(ctx, "job published",
		slog.String("topic", topic),
		slog.String("job_type", job.JobType),
		slog.String("model", job.Model),
		slog.String("key", job.Key),
	)

	return nil
}

// Ping checks Kafka broker connectivity by dialing the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	return PingBrokers(ctx, p.brokers)
}

// PingBrokers dials the given Kafka brokers and returns nil if at least one
// broker is reachable.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}

	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka ping: all brokers unreachable: %w", lastErr)
}

// Close closes the producer and flushes pending messages.
func (p *Producer) Close() error {
	return p.writer.Close()
}
