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

	amqp "github.com/rabbitmq/amqp091-go"
)

// rabbitmqBroker is the RabbitMQ backend. Topics map to routing keys on a
// single topic exchange; the consumer group maps to a named durable queue.
type rabbitmqBroker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	conf    *Conf
}

func newRabbitMQBroker(conf *Conf) (Broker, error) {
	conn, err := amqp.Dial(conf.BootstrapServers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(conf.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", conf.Exchange, err)
	}

	if err := channel.Qos(10, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	return &rabbitmqBroker{
		conn:    conn,
		channel: channel,
		conf:    conf,
	}, nil
}

func (b *rabbitmqBroker) Publish(ctx context.Context, msg *Message) error {
	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}

	err := b.channel.PublishWithContext(ctx,
		b.conf.Exchange,
		msg.Topic, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.Key,
			Headers:      headers,
			Body:         msg.Value,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Topic, err)
	}
	return nil
}

func (b *rabbitmqBroker) Subscribe(ctx context.Context, topics []string, handler Handler) error {
	queue, err := b.channel.QueueDeclare(b.conf.GroupID, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", b.conf.GroupID, err)
	}

	for _, topic := range topics {
		if err := b.channel.QueueBind(queue.Name, topic, b.conf.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", queue.Name, topic, err)
		}
	}

	deliveries, err := b.channel.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", queue.Name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for %s", queue.Name)
			}

			headers := make(map[string]string, len(d.Headers))
			for k, v := range d.Headers {
				if s, ok := v.(string); ok {
					headers[k] = s
				}
			}

			if err := handler(ctx, &Message{
				Topic:   d.RoutingKey,
				Key:     d.MessageId,
				Value:   d.Body,
				Headers: headers,
			}); err != nil {
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (b *rabbitmqBroker) Close() error {
	if err := b.channel.Close(); err != nil {
		_ = b.conn.Close()
		return err
	}
	return b.conn.Close()
}
