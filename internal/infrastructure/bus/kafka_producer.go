// Package bus implements the Kafka event bus: a multi-topic producer for the
// engine's outbound events and a consumer loop shared by the stream workers.
package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

var _ service.EventBus = (*KafkaProducer)(nil)

// KafkaProducer implements service.EventBus with one lazily created writer
// per topic.
type KafkaProducer struct {
	cfg config.KafkaConfig
	log logger.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a new KafkaProducer.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		cfg:     cfg,
		log:     log.WithComponent("KafkaProducer"),
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *KafkaProducer) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(p.cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: p.cfg.WriteTimeout,
		ReadTimeout:  p.cfg.ReadTimeout,
		RequiredAcks: kafka.RequiredAcks(p.cfg.RequiredAcks),
		BatchSize:    p.cfg.BatchSize,
		BatchTimeout: p.cfg.BatchTimeout,
	}
	p.writers[topic] = w
	return w
}

// Emit marshals the payload to JSON and writes it to the topic.
func (p *KafkaProducer) Emit(ctx context.Context, topic string, payload interface{}) error {
	bytes, err := json.Marshal(payload)
	if err != nil {
		return errors.ErrInternal.WithError(err)
	}

	if err := p.writerFor(topic).WriteMessages(ctx, kafka.Message{Value: bytes}); err != nil {
		p.log.Error(ctx, "failed to write message to kafka", err, logger.String("topic", topic))
		return errors.ErrBus.WithError(err)
	}
	return nil
}

// Close closes all topic writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
