package broker

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closedPort returns a local port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}

func TestNew(t *testing.T) {
	for kind, want := range map[string]Client{
		KindMQTT:  &MQTTClient{},
		KindNATS:  &NATSClient{},
		KindKafka: &KafkaClient{},
	} {
		c, err := New(Config{Kind: kind})
		require.NoError(t, err)
		assert.IsType(t, want, c)
	}

	_, err := New(Config{Kind: "amqp"})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", Config{Kind: KindMQTT, MQTT: MQTTConfig{Host: "localhost", Port: 1883}}.Describe())
	assert.Equal(t, "ssl://broker.example:8883", Config{Kind: KindMQTT, MQTT: MQTTConfig{Host: "broker.example", Port: 8883, TLS: true}}.Describe())
	assert.Equal(t, "kafka://a:9092,b:9092", Config{Kind: KindKafka, Kafka: KafkaConfig{Brokers: []string{"a:9092", "b:9092"}}}.Describe())
}

func TestConnectError(t *testing.T) {
	cause := errors.New("connection refused")
	var err error = &ConnectError{Broker: "tcp://localhost:1883", Attempts: 3, Err: cause}

	assert.True(t, errors.Is(err, ErrConnect))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestClientsRequireConnect(t *testing.T) {
	clients := map[string]Client{
		KindMQTT:  NewMQTT(MQTTConfig{Host: "localhost", Port: 1883}),
		KindNATS:  NewNATS(NATSConfig{}),
		KindKafka: NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}}),
	}
	for kind, c := range clients {
		t.Run(kind, func(t *testing.T) {
			assert.ErrorIs(t, c.Subscribe("payments/requests", func(Message) {}), errNotConnected)
			assert.ErrorIs(t, c.Publish(context.Background(), "payments/responses", []byte("{}")), errNotConnected)
			assert.NoError(t, c.Close())
			assert.NoError(t, c.Close())
		})
	}
}

func TestConnectRefused(t *testing.T) {
	port := closedPort(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clients := map[string]Client{
		KindMQTT:  NewMQTT(MQTTConfig{Host: "127.0.0.1", Port: port, ClientID: "test", Timeout: 2 * time.Second}),
		KindNATS:  NewNATS(NATSConfig{URL: "nats://127.0.0.1:" + strconv.Itoa(port), Timeout: 2 * time.Second}),
		KindKafka: NewKafka(KafkaConfig{Brokers: []string{"127.0.0.1:" + strconv.Itoa(port)}, Timeout: 2 * time.Second}),
	}
	for kind, c := range clients {
		t.Run(kind, func(t *testing.T) {
			assert.Error(t, c.Connect(ctx, nil))
			assert.NoError(t, c.Close())
		})
	}
}

func TestKafkaTopic(t *testing.T) {
	assert.Equal(t, "payments.requests", kafkaTopic("payments/requests"))
	assert.Equal(t, "payments.responses", kafkaTopic("payments.responses"))
}
