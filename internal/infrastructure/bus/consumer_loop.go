package bus

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/pkg/logger"
)

// Handler processes one raw message. A returned error leaves the message
// uncommitted for redelivery; nil commits it.
type Handler func(ctx context.Context, value []byte) error

// ConsumerLoop wraps a consumer-group reader with the engine's processing
// contract: fetch, handle with panic isolation, commit after local processing
// succeeds. Malformed payloads are the handler's problem; a handler that
// cannot ever succeed should log and return nil so the pill is committed.
type ConsumerLoop struct {
	reader *kafka.Reader
	log    logger.Logger
	stop   chan struct{}
}

// NewConsumerLoop creates a consumer-group reader on the topic.
func NewConsumerLoop(cfg config.KafkaConfig, topic, groupID string, log logger.Logger) *ConsumerLoop {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return &ConsumerLoop{
		reader: reader,
		log:    log.WithComponent("ConsumerLoop").WithFields(logger.String("topic", topic)),
		stop:   make(chan struct{}),
	}
}

// Run blocks until Stop is called or the context is canceled.
func (c *ConsumerLoop) Run(ctx context.Context, handle Handler) {
	c.log.Info(ctx, "consumer loop started")
	for {
		select {
		case <-c.stop:
			c.log.Info(ctx, "consumer loop stopping")
			return
		case <-ctx.Done():
			c.log.Info(ctx, "consumer loop context canceled")
			return
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Error(ctx, "failed to fetch message from kafka", err)
				continue
			}

			if err := c.safeHandle(ctx, handle, msg.Value); err != nil {
				c.log.Error(ctx, "message handling failed, leaving uncommitted", err,
					logger.Int64("offset", msg.Offset))
				continue
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.log.Error(ctx, "failed to commit kafka offset", err)
			}
		}
	}
}

// safeHandle isolates handler panics so one bad event cannot take the whole
// worker down.
func (c *ConsumerLoop) safeHandle(ctx context.Context, handle Handler, value []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn(ctx, "recovered from panic in message handler", logger.Any("panic", r))
			err = nil // committed; a panicking payload is a poison pill
		}
	}()
	return handle(ctx, value)
}

// Stop shuts the loop down and closes the reader.
func (c *ConsumerLoop) Stop() {
	close(c.stop)
	if err := c.reader.Close(); err != nil {
		c.log.Error(context.Background(), "failed to close kafka reader", err)
	}
}
