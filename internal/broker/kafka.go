package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/Alkatripathi-004/chat-fanout/internal/config"
	"github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

// ConfluentProducer publishes to a single Kafka topic.
type ConfluentProducer struct {
	producer *kafka.Producer
	topic    string
	doneCh   chan struct{}
}

// NewConfluentProducer creates a producer for topic, ensuring the topic
// exists with the desired partition count and retention bound.
func NewConfluentProducer(cfg config.KafkaConfig, topic string) (*ConfluentProducer, error) {
	if err := ensureTopic(cfg, topic); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldTopic, topic).Msg("failed to ensure topic (may already exist)")
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cp := &ConfluentProducer{
		producer: p,
		topic:    topic,
		doneCh:   make(chan struct{}),
	}

	go cp.deliveryReportHandler()

	return cp, nil
}

func ensureTopic(cfg config.KafkaConfig, topic string) error {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	spec := kafka.TopicSpecification{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}
	if tc := retentionConfig(cfg); len(tc) > 0 {
		spec.Config = tc
	}

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{spec})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}

	return nil
}

// retentionConfig maps the configured retention bounds to Kafka topic
// configs. Time retention is the queue TTL; size retention caps the
// backlog the way a queue max length would.
func retentionConfig(cfg config.KafkaConfig) map[string]string {
	tc := make(map[string]string)
	if cfg.RetentionMs > 0 {
		tc["retention.ms"] = strconv.Itoa(cfg.RetentionMs)
	}
	if cfg.RetentionBytes > 0 {
		tc["retention.bytes"] = strconv.FormatInt(cfg.RetentionBytes, 10)
	}
	return tc
}

func (cp *ConfluentProducer) deliveryReportHandler() {
	for e := range cp.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				l := log.L()
				l.Error().Err(ev.TopicPartition.Error).Str(log.FieldTopic, cp.topic).Msg("kafka delivery failed")
			}
		}
	}
	close(cp.doneCh)
}

// Publish produces value to the topic, keyed for partition routing.
func (cp *ConfluentProducer) Publish(ctx context.Context, key string, value []byte) error {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &cp.topic,
			Partition: kafka.PartitionAny,
		},
		Value: value,
	}
	if key != "" {
		msg.Key = []byte(key)
	}

	if err := cp.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	return nil
}

func (cp *ConfluentProducer) Close() error {
	cp.producer.Flush(5000)
	cp.producer.Close()
	<-cp.doneCh
	return nil
}

// ConsumerOptions configures a ConfluentConsumer.
type ConsumerOptions struct {
	Brokers             string
	Topic               string
	GroupID             string
	ManualAck           bool
	OffsetReset         string
	MaxPollIntervalMs   int
	SessionTimeoutMs    int
	HeartbeatIntervalMs int
}

// ConfluentConsumer polls one topic and feeds deliveries to a handler.
// With ManualAck set, Ack commits the delivery's offset and Nack seeks
// the partition back so the broker redelivers it.
type ConfluentConsumer struct {
	consumer *kafka.Consumer
	opts     ConsumerOptions
	handler  Handler
}

func NewConfluentConsumer(opts ConsumerOptions, handler Handler) (*ConfluentConsumer, error) {
	if opts.OffsetReset == "" {
		opts.OffsetReset = "earliest"
	}

	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  opts.Brokers,
		"group.id":           opts.GroupID,
		"auto.offset.reset":  opts.OffsetReset,
		"enable.auto.commit": !opts.ManualAck,
	}
	if !opts.ManualAck {
		configMap.SetKey("auto.commit.interval.ms", 5000)
	}
	if opts.MaxPollIntervalMs > 0 {
		configMap.SetKey("max.poll.interval.ms", opts.MaxPollIntervalMs)
	}
	if opts.SessionTimeoutMs > 0 {
		configMap.SetKey("session.timeout.ms", opts.SessionTimeoutMs)
	}
	if opts.HeartbeatIntervalMs > 0 {
		configMap.SetKey("heartbeat.interval.ms", opts.HeartbeatIntervalMs)
	}

	c, err := kafka.NewConsumer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &ConfluentConsumer{
		consumer: c,
		opts:     opts,
		handler:  handler,
	}, nil
}

func (c *ConfluentConsumer) Run(ctx context.Context) error {
	if err := c.consumer.Subscribe(c.opts.Topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", c.opts.Topic, err)
	}

	l := log.L()
	l.Info().Str(log.FieldTopic, c.opts.Topic).Str("group_id", c.opts.GroupID).Msg("kafka consumer started")

	for {
		select {
		case <-ctx.Done():
			l.Info().Str(log.FieldTopic, c.opts.Topic).Msg("kafka consumer stopping")
			return nil
		default:
		}

		ev := c.consumer.Poll(500)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			c.handler(ctx, c.wrap(e))
		case kafka.Error:
			l.Error().Str(log.FieldTopic, c.opts.Topic).Msgf("kafka error: %v (code=%d fatal=%v)", e, e.Code(), e.IsFatal())
			if e.IsFatal() {
				return fmt.Errorf("fatal kafka error: %w", e)
			}
		case kafka.OffsetsCommitted:
			// Normal commit acknowledgement
		default:
			// Ignore other events (rebalance, etc.)
		}
	}
}

func (c *ConfluentConsumer) wrap(msg *kafka.Message) *Delivery {
	if !c.opts.ManualAck {
		return NewDelivery(msg.Key, msg.Value, nil, nil)
	}

	ack := func() error {
		_, err := c.consumer.CommitMessage(msg)
		return err
	}
	nack := func() error {
		// Rewind to the delivery's own offset so the next poll
		// redelivers it.
		return c.consumer.Seek(kafka.TopicPartition{
			Topic:     msg.TopicPartition.Topic,
			Partition: msg.TopicPartition.Partition,
			Offset:    msg.TopicPartition.Offset,
		}, 100)
	}
	return NewDelivery(msg.Key, msg.Value, ack, nack)
}

func (c *ConfluentConsumer) Close() error {
	return c.consumer.Close()
}
