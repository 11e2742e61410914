package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig describes a Kafka cluster and the consumer group the relay joins.
type KafkaConfig struct {
	Brokers []string
	GroupID string
	Timeout time.Duration
}

// KafkaClient is a Client backed by kafka-go. Each subscription runs one read
// loop that delivers messages sequentially. Topic names have "/" replaced by
// "." since Kafka does not allow slashes.
type KafkaClient struct {
	cfg KafkaConfig

	mu      sync.Mutex
	writer  *kafka.Writer
	readers []*kafka.Reader
	onLost  func(error)
	cancel  context.CancelFunc
	loopCtx context.Context
	wg      sync.WaitGroup
	lost    sync.Once
}

func NewKafka(cfg KafkaConfig) *KafkaClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &KafkaClient{cfg: cfg}
}

func kafkaTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func (c *KafkaClient) Connect(ctx context.Context, onLost func(error)) error {
	if len(c.cfg.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	dialer := &kafka.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial %s: %w", c.cfg.Brokers[0], err)
	}
	_ = conn.Close()

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer = &kafka.Writer{
		Addr:                   kafka.TCP(c.cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           c.cfg.Timeout,
	}
	c.onLost = onLost
	c.loopCtx = loopCtx
	c.cancel = cancel
	return nil
}

func (c *KafkaClient) Subscribe(topic string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return errNotConnected
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    kafkaTopic(topic),
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c.readers = append(c.readers, reader)

	c.wg.Add(1)
	go c.readLoop(c.loopCtx, reader, handler)
	return nil
}

func (c *KafkaClient) readLoop(ctx context.Context, reader *kafka.Reader, handler Handler) {
	defer c.wg.Done()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.lost.Do(func() {
					if c.onLost != nil {
						c.onLost(err)
					}
				})
			}
			return
		}
		handler(Message{Topic: m.Topic, Payload: m.Value})
	}
}

func (c *KafkaClient) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	writer := c.writer
	c.mu.Unlock()
	if writer == nil {
		return errNotConnected
	}
	if err := writer.WriteMessages(ctx, kafka.Message{Topic: kafkaTopic(topic), Value: payload}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

func (c *KafkaClient) Close() error {
	c.mu.Lock()
	writer, readers, cancel := c.writer, c.readers, c.cancel
	c.writer, c.readers, c.cancel = nil, nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	c.wg.Wait()

	var errs []error
	for _, r := range readers {
		errs = append(errs, r.Close())
	}
	errs = append(errs, writer.Close())
	return errors.Join(errs...)
}
