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

// Package bus abstracts the at-least-once message transport used to
// dispatch stage work to agents and to receive their results.
package bus

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// BrokerType represents the message broker backend.
type BrokerType string

const (
	BrokerTypeKafka    BrokerType = "kafka"
	BrokerTypeRabbitMQ BrokerType = "rabbitmq"
)

// Default tuning values, overridable through Conf.
const (
	DefaultSessionTimeout  = 30000  // milliseconds
	DefaultMaxPollInterval = 300000 // milliseconds
	DefaultPublishTimeout  = 10 * time.Second
)

// Message represents a single bus message.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Handler is the function type for consumed messages. Returning an error
// leaves the message unacknowledged so the broker redelivers it.
type Handler func(ctx context.Context, msg *Message) error

// Broker is the interface all message bus backends implement.
type Broker interface {
	// Publish sends a single message. The context bounds the send.
	Publish(ctx context.Context, msg *Message) error

	// Subscribe consumes the given topics until ctx is cancelled,
	// invoking handler for every delivered message. It blocks.
	Subscribe(ctx context.Context, topics []string, handler Handler) error

	// Close releases the underlying connections.
	Close() error
}

// Conf holds broker configuration shared by all backends.
type Conf struct {
	Type             string // kafka or rabbitmq
	BootstrapServers string // kafka broker list or AMQP URL
	GroupID          string // consumer group / queue name
	Exchange         string // rabbitmq topic exchange
	SessionTimeout   int    // kafka session timeout (ms)
	MaxPollInterval  int    // kafka max poll interval (ms)
	PublishTimeout   time.Duration
}

// SetDefaults fills unset tuning values.
func (c *Conf) SetDefaults() {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.MaxPollInterval <= 0 {
		c.MaxPollInterval = DefaultMaxPollInterval
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = DefaultPublishTimeout
	}
	if c.Exchange == "" {
		c.Exchange = "conveyor"
	}
}

// New creates a broker for the configured backend.
func New(conf *Conf) (Broker, error) {
	conf.SetDefaults()

	switch BrokerType(conf.Type) {
	case BrokerTypeKafka:
		return newKafkaBroker(conf)
	case BrokerTypeRabbitMQ:
		return newRabbitMQBroker(conf)
	default:
		return nil, errors.Errorf("unsupported broker type: %q", conf.Type)
	}
}
