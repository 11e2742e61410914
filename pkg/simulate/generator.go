// Package simulate produces synthetic IoT payment requests and publishes them
// to a broker the way field devices would.
package simulate

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"payment-relay/pkg/types"
)

const (
	MinAmount = 10.0
	MaxAmount = 200.0

	defaultDevices = 5
)

// Generator creates random requests. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	devices int
}

func NewGenerator(devices int) *Generator {
	return NewSeededGenerator(devices, rand.Uint64(), rand.Uint64())
}

// NewSeededGenerator returns a deterministic generator for tests and replays.
func NewSeededGenerator(devices int, seed1, seed2 uint64) *Generator {
	if devices <= 0 {
		devices = defaultDevices
	}
	return &Generator{
		rnd:     rand.New(rand.NewPCG(seed1, seed2)),
		devices: devices,
	}
}

// Next returns a request with a fresh uuid, an amount in [MinAmount, MaxAmount)
// rounded to cents and one of the simulated device ids.
func (g *Generator) Next() types.Request {
	g.mu.Lock()
	amount := MinAmount + g.rnd.Float64()*(MaxAmount-MinAmount)
	device := g.rnd.IntN(g.devices) + 1
	g.mu.Unlock()

	return types.Request{
		ID:       uuid.NewString(),
		Amount:   types.RoundCents(amount),
		DeviceID: fmt.Sprintf("sim-device-%d", device),
	}
}
