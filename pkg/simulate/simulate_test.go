package simulate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-relay/pkg/broker"
	"payment-relay/pkg/types"
)

func TestGeneratorNext(t *testing.T) {
	g := NewSeededGenerator(3, 1, 2)
	seen := map[string]bool{}

	for i := 0; i < 500; i++ {
		req := g.Next()

		_, err := uuid.Parse(req.ID)
		require.NoError(t, err)
		assert.False(t, seen[req.ID], "duplicate id %s", req.ID)
		seen[req.ID] = true

		assert.GreaterOrEqual(t, req.Amount, MinAmount)
		assert.LessOrEqual(t, req.Amount, MaxAmount)
		assert.Equal(t, types.RoundCents(req.Amount), req.Amount)
		assert.Contains(t, []string{"sim-device-1", "sim-device-2", "sim-device-3"}, req.DeviceID)
	}
}

func TestGeneratorIsDeterministicPerSeed(t *testing.T) {
	a := NewSeededGenerator(5, 7, 9)
	b := NewSeededGenerator(5, 7, 9)
	for i := 0; i < 20; i++ {
		ra, rb := a.Next(), b.Next()
		assert.Equal(t, ra.Amount, rb.Amount)
		assert.Equal(t, ra.DeviceID, rb.DeviceID)
	}
}

type recordingClient struct {
	broker.Client
	mu       sync.Mutex
	payloads [][]byte
	failAt   int
}

func (r *recordingClient) Publish(_ context.Context, topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.payloads)+1 == r.failAt {
		return errors.New("broker unavailable")
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

func TestPublisher(t *testing.T) {
	client := &recordingClient{}
	p := NewPublisher(client, "payments/requests", NewSeededGenerator(2, 3, 4), 0)

	sent, err := p.Publish(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, sent, 4)
	require.Len(t, client.payloads, 4)

	for i, payload := range client.payloads {
		got, err := types.DecodeRequest(payload)
		require.NoError(t, err)
		assert.Equal(t, sent[i], got)
	}
}

func TestPublisherStopsAtFailure(t *testing.T) {
	client := &recordingClient{failAt: 3}
	p := NewPublisher(client, "payments/requests", NewSeededGenerator(2, 3, 4), 0)

	sent, err := p.Publish(context.Background(), 5)
	require.Error(t, err)
	assert.Len(t, sent, 2)
}
