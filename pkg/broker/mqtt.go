package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig describes an MQTT broker endpoint.
type MQTTConfig struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	TLS      bool
	// Timeout bounds connect, subscribe and publish acknowledgements.
	Timeout time.Duration
}

func (c MQTTConfig) URL() string {
	scheme := "tcp"
	if c.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// MQTTClient is a Client backed by paho. Messages are delivered at QoS 1 and
// handlers run concurrently.
type MQTTClient struct {
	cfg MQTTConfig

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTT(cfg MQTTConfig) *MQTTClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MQTTClient{cfg: cfg}
}

func (c *MQTTClient) options(onLost func(error)) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.URL()).
		SetClientID(c.cfg.ClientID).
		SetConnectTimeout(c.cfg.Timeout).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			if onLost != nil {
				onLost(err)
			}
		})
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	if c.cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

func (c *MQTTClient) Connect(ctx context.Context, onLost func(error)) error {
	client := mqtt.NewClient(c.options(onLost))
	if err := wait(ctx, client.Connect(), c.cfg.Timeout); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect %s: %w", c.cfg.URL(), err)
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	return nil
}

func (c *MQTTClient) current() (mqtt.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, errNotConnected
	}
	return c.client, nil
}

func (c *MQTTClient) Subscribe(topic string, handler Handler) error {
	client, err := c.current()
	if err != nil {
		return err
	}
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
		handler(Message{Topic: m.Topic(), Payload: m.Payload()})
	})
	if err := wait(context.Background(), token, c.cfg.Timeout); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	client, err := c.current()
	if err != nil {
		return err
	}
	if err := wait(ctx, client.Publish(topic, 1, false, payload), c.cfg.Timeout); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (c *MQTTClient) Close() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
	}
	return nil
}

// wait blocks until token completes, ctx ends or timeout elapses.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no acknowledgement within %s", timeout)
	}
}
