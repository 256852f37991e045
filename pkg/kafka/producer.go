package kafka

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
)

// Producer publishes messages to Kafka
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	config ProducerConfig
}

// NewProducer creates a new Kafka producer
func NewProducer(config ProducerConfig, logger ectologger.Logger) (*Producer, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	var compression kafka.Compression
	switch config.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "snappy":
		compression = kafka.Snappy
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	default:
		compression = 0 // No compression
	}

	// NOTE: Do not set Topic on the Writer when you need to publish to multiple topics.
	// When Topic is set on Writer, individual messages cannot specify their own topic.
	// We leave Topic empty here so that each message can specify its destination topic.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{}, // Hash by key for partition affinity
		BatchSize:              config.BatchSize,
		BatchTimeout:           config.BatchTimeout,
		MaxAttempts:            config.MaxAttempts,
		WriteTimeout:           config.WriteTimeout,
		Async:                  config.Async,
		Compression:            compression,
		RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		config: config,
	}, nil
}

// Publish publishes a sync event to the default output topic
func (p *Producer) Publish(ctx context.Context, event *SyncEvent) error {
	return p.PublishToTopic(ctx, p.config.Topic, event)
}

// PublishToTopic publishes a sync event to a specific topic
func (p *Producer) PublishToTopic(ctx context.Context, topic string, event *SyncEvent) error {
	// Serialize event
	data, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	// Build key for partition affinity (shop:entity_type). All events for a
	// shop's entity type land on one partition so consumers observe them in
	// emission order.
	key := fmt.Sprintf("%s:%s", event.ShopID, event.EntityType)

	// Build headers
	headers := MessageHeaders{
		ShopID:     event.ShopID,
		EventType:  event.EventType,
		EntityType: event.EntityType,
	}
	if event.TraceID != "" {
		headers.TraceParent = fmt.Sprintf("00-%s-%s-01", event.TraceID, event.SpanID)
	}

	kafkaHeaders := make([]kafka.Header, 0)
	for _, h := range headers.ToKafkaHeaders() {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: h.Key, Value: h.Value})
	}

	// Create Kafka message
	kafkaMsg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   data,
		Headers: kafkaHeaders,
		Time:    event.Timestamp,
	}

	// Publish
	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// PublishBatch publishes multiple events in a batch
func (p *Producer) PublishBatch(ctx context.Context, events []*SyncEvent) error {
	if len(events) == 0 {
		return nil
	}

	kafkaMessages := make([]kafka.Message, 0, len(events))

	for _, event := range events {
		data, err := event.ToJSON()
		if err != nil {
			p.logger.WithError(err).Error("Failed to serialize event in batch, skipping")
			continue
		}

		key := fmt.Sprintf("%s:%s", event.ShopID, event.EntityType)

		headers := MessageHeaders{
			ShopID:     event.ShopID,
			EventType:  event.EventType,
			EntityType: event.EntityType,
		}
		if event.TraceID != "" {
			headers.TraceParent = fmt.Sprintf("00-%s-%s-01", event.TraceID, event.SpanID)
		}

		kafkaHeaders := make([]kafka.Header, 0)
		for _, h := range headers.ToKafkaHeaders() {
			kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: h.Key, Value: h.Value})
		}

		kafkaMessages = append(kafkaMessages, kafka.Message{
			Topic:   p.config.Topic,
			Key:     []byte(key),
			Value:   data,
			Headers: kafkaHeaders,
			Time:    event.Timestamp,
		})
	}

	if err := p.writer.WriteMessages(ctx, kafkaMessages...); err != nil {
		return fmt.Errorf("failed to publish batch: %w", err)
	}

	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close producer: %w", err)
	}
	p.logger.Info("Kafka producer closed")
	return nil
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
