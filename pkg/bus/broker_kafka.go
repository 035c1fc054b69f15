// Copyright 2025 Conveyor Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// kafkaBroker is the Kafka backend.
type kafkaBroker struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	conf     *Conf
}

func newKafkaBroker(conf *Conf) (Broker, error) {
	producerConfig := &kafka.ConfigMap{
		"bootstrap.servers":                     conf.BootstrapServers,
		"acks":                                  "all",
		"retries":                               3,
		"max.in.flight.requests.per.connection": 5,
	}

	producer, err := kafka.NewProducer(producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	consumerConfig := &kafka.ConfigMap{
		"bootstrap.servers":    conf.BootstrapServers,
		"group.id":             conf.GroupID,
		"auto.offset.reset":    "earliest",
		"enable.auto.commit":   false,
		"session.timeout.ms":   conf.SessionTimeout,
		"max.poll.interval.ms": conf.MaxPollInterval,
	}

	consumer, err := kafka.NewConsumer(consumerConfig)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return &kafkaBroker{
		producer: producer,
		consumer: consumer,
		conf:     conf,
	}, nil
}

// Publish sends a single message and waits for the delivery report.
func (b *kafkaBroker) Publish(ctx context.Context, msg *Message) error {
	kafkaHeaders := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: k, Value: []byte(v)})
	}

	topic := msg.Topic
	deliveryChan := make(chan kafka.Event, 1)
	err := b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: kafkaHeaders,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("failed to produce message to %s: %w", topic, err)
	}

	select {
	case ev := <-deliveryChan:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event for %s: %v", topic, ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery to %s failed: %w", topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe consumes the topics until ctx is cancelled. Offsets are
// committed only after the handler returns nil, so a crashed handler
// leads to redelivery rather than message loss.
func (b *kafkaBroker) Subscribe(ctx context.Context, topics []string, handler Handler) error {
	if err := b.consumer.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("failed to subscribe to %v: %w", topics, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := b.consumer.ReadMessage(time.Second)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.IsTimeout() {
				continue
			}
			return fmt.Errorf("consumer read failed: %w", err)
		}

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}

		if err := handler(ctx, &Message{
			Topic:   *msg.TopicPartition.Topic,
			Key:     string(msg.Key),
			Value:   msg.Value,
			Headers: headers,
		}); err != nil {
			// leave uncommitted; the message is redelivered
			continue
		}

		if _, err := b.consumer.CommitMessage(msg); err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
	}
}

func (b *kafkaBroker) Close() error {
	b.producer.Flush(int(b.conf.PublishTimeout.Milliseconds()))
	b.producer.Close()
	return b.consumer.Close()
}
