package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig describes a NATS server endpoint.
type NATSConfig struct {
	URL      string
	Name     string
	Username string
	Password string
	Timeout  time.Duration
}

// NATSClient is a Client backed by a core NATS connection. Each subscription
// delivers its messages sequentially on its own goroutine.
type NATSClient struct {
	cfg NATSConfig

	mu   sync.Mutex
	conn *nats.Conn
}

func NewNATS(cfg NATSConfig) *NATSClient {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &NATSClient{cfg: cfg}
}

func (c *NATSClient) Connect(ctx context.Context, onLost func(error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.Timeout(c.cfg.Timeout),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && onLost != nil {
				onLost(err)
			}
		}),
	}
	if c.cfg.Username != "" {
		opts = append(opts, nats.UserInfo(c.cfg.Username, c.cfg.Password))
	}

	conn, err := nats.Connect(c.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *NATSClient) current() (*nats.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errNotConnected
	}
	return c.conn, nil
}

func (c *NATSClient) Subscribe(topic string, handler Handler) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	_, err = conn.Subscribe(topic, func(msg *nats.Msg) {
		handler(Message{Topic: msg.Subject, Payload: msg.Data})
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *NATSClient) Publish(ctx context.Context, topic string, payload []byte) error {
	conn, err := c.current()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := conn.Publish(topic, payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (c *NATSClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Flush()
	conn.Close()
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}
