// Package kafka publishes outbox payloads to a Kafka topic.
package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
)

// Publisher sends one message and waits for the broker to acknowledge it.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

var ErrUnknownDriver = errors.New("kafka: unknown driver")

const (
	DriverKafkaGo = "kafka-go"
	DriverSarama  = "sarama"
)

// New builds the publisher for driver.
func New(driver string, brokers []string, topic string) (Publisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka: brokers and topic required")
	}
	switch driver {
	case DriverKafkaGo, "":
		return NewProducer(brokers, topic), nil
	case DriverSarama:
		return NewSaramaProducer(brokers, topic)
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "%q", driver)
	}
}

// -------------------- kafka-go --------------------

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// -------------------- sarama --------------------

type SaramaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewSaramaProducer(brokers []string, topic string) (*SaramaProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka: sarama producer")
	}
	return WrapSyncProducer(p, topic), nil
}

// WrapSyncProducer publishes through an existing sarama producer.
func WrapSyncProducer(p sarama.SyncProducer, topic string) *SaramaProducer {
	return &SaramaProducer{producer: p, topic: topic}
}

// Publish ignores ctx; SendMessage blocks until sarama's own timeouts fire.
func (p *SaramaProducer) Publish(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *SaramaProducer) Close() error {
	return p.producer.Close()
}
