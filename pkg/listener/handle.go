package listener

import (
	"sync"

	"payment-relay/pkg/broker"
)

// State is the connection state of a listener session. StateConnected means
// the session is up but the inbound subscription was refused.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateSubscribed    State = "subscribed"
	StateDisconnecting State = "disconnecting"
)

// Handle is one live listener session, returned by Run and passed to Stop.
type Handle struct {
	mu       sync.Mutex
	state    State
	closing  bool
	inflight sync.WaitGroup
	stopOnce sync.Once
	endOnce  sync.Once
	done     chan struct{}
}

func newHandle() *Handle {
	return &Handle{state: StateDisconnected, done: make(chan struct{})}
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed when the session ends, by Stop or by a lost connection.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) end(s State) {
	h.setState(s)
	h.endOnce.Do(func() { close(h.done) })
}

// guard wraps a delivery handler so Stop can wait for it and deliveries that
// arrive after Stop began are ignored.
func (h *Handle) guard(fn broker.Handler) broker.Handler {
	return func(msg broker.Message) {
		h.mu.Lock()
		if h.closing {
			h.mu.Unlock()
			return
		}
		h.inflight.Add(1)
		h.mu.Unlock()
		defer h.inflight.Done()

		fn(msg)
	}
}
