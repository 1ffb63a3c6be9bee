package mq

import (
	"context"
	"fmt"

	"github.com/voicetory/apiserver/config"
)

// Message is a broker-agnostic inventory event delivery.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Returning an error asks the broker to redeliver.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by every broker client.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
	name    string
}

func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Open connects the broker named by cfg.MQBackend. It returns nil when
// publishing is disabled.
func Open(ctx context.Context, cfg config.Config) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.MQBackend {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	case config.BackendMemory:
		backend = NewMemoryBroker(0)
	default:
		return nil, fmt.Errorf("unsupported mq backend %q", cfg.MQBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.MQBackend, err)
	}
	return &MQ{backend: backend, name: cfg.MQBackend}, nil
}

// Name is the configured backend name, empty for brokers built with New.
func (m *MQ) Name() string {
	return m.name
}

func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe blocks delivering messages from channel until ctx is done.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

func (m *MQ) Close() error {
	return m.backend.Close()
}
