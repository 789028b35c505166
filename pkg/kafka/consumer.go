package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/utafrali/searchsync/pkg/logger"
)

// defaultHandlerRetries is how many times a handler is attempted before the
// message is sent to the DLQ (or committed and skipped when no DLQ is set).
const defaultHandlerRetries = 3

// Handler processes one job.
type Handler func(ctx context.Context, job *Job) error

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// MaxRetries defaults to 3.
	MaxRetries int
	// RetryBackoff is multiplied by the attempt number. Defaults to 100ms.
	RetryBackoff time.Duration
}

// Consumer reads jobs from one topic and hands them to a Handler.
type Consumer struct {
	reader    messageReader
	logger    *slog.Logger
	handler   Handler
	dlq       *DLQProducer
	topic     string
	group     string
	retries   int
	backoff   time.Duration
	closeOnce sync.Once
}

// NewConsumer creates a new Kafka consumer for a specific topic and group.
// dlq may be nil.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq *DLQProducer, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, dlq, logger)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, dlq *DLQProducer, logger *slog.Logger) *Consumer {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultHandlerRetries
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Consumer{
		reader:  r,
		logger:  logger,
		handler: handler,
		dlq:     dlq,
		topic:   cfg.Topic,
		group:   cfg.GroupID,
		retries: retries,
		backoff: backoff,
	}
}

// Start begins consuming messages. It blocks until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("job consumer started",
		slog.String("topic", c.topic),
		slog.String("group", c.group),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("job consumer stopping", slog.String("topic", c.topic))
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}

		if stop := c.process(ctx, msg); stop {
			return c.Close()
		}
	}
}

// process runs the handler for one message and commits it. It returns true
// when ctx was canceled mid-retry and the message was left uncommitted.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	job, err := UnmarshalJob(msg.Value)
	if err != nil {
		c.logger.Error("failed to unmarshal job",
			slog.String("error", err.Error()),
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
		)
		c.commit(ctx, msg)
		return false
	}

	jobCtx := extractTraceContext(ctx, &msg)
	jobCtx = logger.WithJobID(jobCtx, job.JobID)
	if job.CorrelationID != "" {
		jobCtx = logger.WithCorrelationID(jobCtx, job.CorrelationID)
	}
	log := logger.WithContext(jobCtx, c.logger)

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if lastErr = c.handler(jobCtx, job); lastErr == nil {
			break
		}
		log.Warn("job handler failed, will retry",
			slog.String("job_type", job.JobType),
			slog.String("model", job.Model),
			slog.String("key", job.Key),
			slog.String("error", lastErr.Error()),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.retries),
		)
		if attempt < c.retries {
			select {
			case <-ctx.Done():
				return true
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}
	ConsumerProcessingDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())

	if lastErr != nil {
		ConsumerJobsFailed.WithLabelValues(c.topic, c.group).Inc()
		log.Error("job failed after all retries",
			slog.String("job_type", job.JobType),
			slog.String("model", job.Model),
			slog.String("key", job.Key),
			slog.String("error", lastErr.Error()),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
		)
		if c.dlq != nil {
			if err := c.dlq.Publish(ctx, msg, lastErr, c.group); err == nil {
				ConsumerDLQPublished.WithLabelValues(c.topic, c.group).Inc()
			}
		}
		c.commit(ctx, msg)
		return false
	}

	ConsumerJobsProcessed.WithLabelValues(c.topic, c.group).Inc()
	c.commit(ctx, msg)
	return false
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
