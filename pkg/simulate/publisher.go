package simulate

import (
	"context"
	"fmt"
	"time"

	"payment-relay/pkg/broker"
	"payment-relay/pkg/types"
)

// Publisher sends generated requests to the inbound topic.
type Publisher struct {
	client   broker.Client
	topic    string
	gen      *Generator
	interval time.Duration
}

func NewPublisher(client broker.Client, topic string, gen *Generator, interval time.Duration) *Publisher {
	return &Publisher{client: client, topic: topic, gen: gen, interval: interval}
}

// Publish sends count requests, pausing interval between them, and returns
// the requests that were published. It stops at the first publish failure.
func (p *Publisher) Publish(ctx context.Context, count int) ([]types.Request, error) {
	sent := make([]types.Request, 0, count)
	for i := 0; i < count; i++ {
		if i > 0 && p.interval > 0 {
			select {
			case <-time.After(p.interval):
			case <-ctx.Done():
				return sent, ctx.Err()
			}
		}

		req := p.gen.Next()
		payload, err := types.EncodeRequest(req)
		if err != nil {
			return sent, err
		}
		if err := p.client.Publish(ctx, p.topic, payload); err != nil {
			return sent, fmt.Errorf("publish transaction %s: %w", req.ID, err)
		}
		sent = append(sent, req)
	}
	return sent, nil
}
