package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/congo-pay/custody/internal/ledger"
)

const flushTimeoutMs = 5_000

// KafkaPublisher produces logs to a Kafka topic keyed by contract address.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaPublisher connects a producer to the bootstrap servers.
func NewKafkaPublisher(servers, topic string) (*KafkaPublisher, error) {
	if servers == "" {
		return nil, fmt.Errorf("kafka servers are required")
	}
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": servers,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	if topic == "" {
		topic = DefaultStream
	}
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

// Publish produces the log and waits for the delivery report.
func (p *KafkaPublisher) Publish(ctx context.Context, log ledger.Log) error {
	payload, err := json.Marshal(NewEnvelope(log))
	if err != nil {
		return err
	}

	delivery := make(chan kafka.Event, 1)
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            log.Contract.Bytes(),
		Value:          payload,
		Headers:        []kafka.Header{{Key: "topic", Value: []byte(log.Topic)}},
	}, delivery)
	if err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-delivery:
		msg, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected kafka event %v", ev)
		}
		return msg.TopicPartition.Error
	}
}

// Close flushes outstanding messages and releases the producer.
func (p *KafkaPublisher) Close() {
	p.producer.Flush(flushTimeoutMs)
	p.producer.Close()
}
