// Package broker adapts publish/subscribe transports to a single Client
// interface used by the listener and the simulator.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	KindMQTT  = "mqtt"
	KindNATS  = "nats"
	KindKafka = "kafka"
)

// Message is one delivery from a subscription.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler receives deliveries. Implementations may invoke it from several
// goroutines at once.
type Handler func(msg Message)

// Client is a connection to a message broker.
type Client interface {
	// Connect opens the session. onLost is called at most once if an
	// established session drops; the client does not reconnect by itself.
	Connect(ctx context.Context, onLost func(error)) error
	// Subscribe registers handler for topic. Deliveries may begin before the
	// broker acknowledges the subscription.
	Subscribe(topic string, handler Handler) error
	Publish(ctx context.Context, topic string, payload []byte) error
	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// ErrConnect matches every *ConnectError via errors.Is.
var ErrConnect = errors.New("broker connect")

// ConnectError reports that no session could be established.
type ConnectError struct {
	Broker   string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s after %d attempts: %v", e.Broker, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Is(target error) bool { return target == ErrConnect }

var errNotConnected = errors.New("broker client is not connected")

// Config selects and configures one transport.
type Config struct {
	Kind  string
	MQTT  MQTTConfig
	NATS  NATSConfig
	Kafka KafkaConfig
}

// New returns an unconnected client for cfg.Kind.
func New(cfg Config) (Client, error) {
	switch cfg.Kind {
	case KindMQTT:
		return NewMQTT(cfg.MQTT), nil
	case KindNATS:
		return NewNATS(cfg.NATS), nil
	case KindKafka:
		return NewKafka(cfg.Kafka), nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}

// Describe names the endpoint of cfg for logs and errors.
func (cfg Config) Describe() string {
	switch cfg.Kind {
	case KindMQTT:
		return cfg.MQTT.URL()
	case KindNATS:
		return cfg.NATS.URL
	case KindKafka:
		return fmt.Sprintf("kafka://%s", strings.Join(cfg.Kafka.Brokers, ","))
	default:
		return cfg.Kind
	}
}
