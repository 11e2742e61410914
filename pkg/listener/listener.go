// Package listener consumes payment requests from a broker topic, runs them
// through the processor and publishes each verdict on a response topic.
//
// Lifecycle: Run connects (retrying a fixed number of times) and subscribes,
// returning a *Handle; Stop drains in-flight work and closes the connection.
// A session that drops after Run succeeded is not re-established.
package listener

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"payment-relay/pkg/broker"
	"payment-relay/pkg/metrics"
	"payment-relay/pkg/types"
)

const (
	DefaultMaxRetries = 10
	DefaultRetryDelay = 2 * time.Second

	publishTimeout = 10 * time.Second
)

// Processor turns a request into a verdict.
type Processor interface {
	Process(ctx context.Context, id string, amount float64, deviceID string) (types.Status, error)
}

type Config struct {
	InboundTopic  string
	OutboundTopic string
	MaxRetries    int
	RetryDelay    time.Duration
	// BrokerName identifies the endpoint in logs and connect errors.
	BrokerName string
}

type Listener struct {
	client  broker.Client
	proc    Processor
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Listener)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Listener) {
		l.metrics = m
	}
}

func New(client broker.Client, proc Processor, cfg Config, opts ...Option) *Listener {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	l := &Listener{
		client: client,
		proc:   proc,
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run connects and subscribes to the inbound topic. If every connection
// attempt fails it returns a nil handle and a *broker.ConnectError; the caller
// decides whether to continue without the channel.
func (l *Listener) Run(ctx context.Context) (*Handle, error) {
	h := newHandle()
	h.setState(StateConnecting)

	if err := l.connect(ctx, h); err != nil {
		h.setState(StateDisconnected)
		return nil, err
	}

	next := StateSubscribed
	if err := l.client.Subscribe(l.cfg.InboundTopic, h.guard(l.handle)); err != nil {
		l.logger.Error("subscription failed", "topic", l.cfg.InboundTopic, "error", err)
		next = StateConnected
	} else {
		l.logger.Info("subscribed", "topic", l.cfg.InboundTopic)
	}
	h.mu.Lock()
	select {
	case <-h.done:
	default:
		h.state = next
	}
	h.mu.Unlock()
	return h, nil
}

func (l *Listener) connect(ctx context.Context, h *Handle) error {
	var lastErr error
	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		l.metrics.IncConnectAttempts()
		l.logger.Info("connecting to broker", "broker", l.cfg.BrokerName, "attempt", attempt)

		lastErr = l.client.Connect(ctx, func(err error) { l.connectionLost(h, err) })
		if lastErr == nil {
			l.logger.Info("connected to broker", "broker", l.cfg.BrokerName)
			return nil
		}
		l.logger.Warn("broker connection failed",
			"broker", l.cfg.BrokerName,
			"attempt", attempt,
			"retry_in", l.cfg.RetryDelay,
			"error", lastErr,
		)

		if attempt == l.cfg.MaxRetries {
			break
		}
		select {
		case <-time.After(l.cfg.RetryDelay):
		case <-ctx.Done():
			return &broker.ConnectError{Broker: l.cfg.BrokerName, Attempts: attempt, Err: ctx.Err()}
		}
	}

	l.logger.Error("giving up on broker", "broker", l.cfg.BrokerName, "attempts", l.cfg.MaxRetries)
	return &broker.ConnectError{Broker: l.cfg.BrokerName, Attempts: l.cfg.MaxRetries, Err: lastErr}
}

func (l *Listener) connectionLost(h *Handle, err error) {
	l.logger.Error("broker connection lost; restart required to resume consuming",
		"broker", l.cfg.BrokerName,
		"error", err,
	)
	h.end(StateDisconnected)
}

// handle processes one delivery. Bad messages and store failures are logged
// and dropped; nothing is retried.
func (l *Listener) handle(msg broker.Message) {
	req, err := types.DecodeRequest(msg.Payload)
	if err != nil {
		l.metrics.IncFailed(metrics.ReasonDecode)
		l.logger.Warn("dropping inbound message", "topic", msg.Topic, "error", err)
		return
	}

	status, err := l.proc.Process(context.Background(), req.ID, req.Amount, req.DeviceID)
	if err != nil {
		l.logger.Error("failed to process transaction",
			"transaction_id", req.ID,
			"device_id", req.DeviceID,
			"error", err,
		)
		return
	}

	payload, err := types.EncodeResponse(types.Response{ID: req.ID, Status: status})
	if err != nil {
		l.metrics.IncFailed(metrics.ReasonPublish)
		l.logger.Error("failed to encode response", "transaction_id", req.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := l.client.Publish(ctx, l.cfg.OutboundTopic, payload); err != nil {
		l.metrics.IncFailed(metrics.ReasonPublish)
		l.logger.Error("failed to publish response",
			"transaction_id", req.ID,
			"topic", l.cfg.OutboundTopic,
			"error", err,
		)
		return
	}
	l.logger.Info("transaction processed",
		"transaction_id", req.ID,
		"device_id", req.DeviceID,
		"status", status,
	)
}

// Stop stops accepting deliveries, waits for in-flight transactions until ctx
// ends, then closes the broker connection. The connection is closed even when
// ctx expires first. Stop on a nil or already stopped handle is a no-op.
func (l *Listener) Stop(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}

	var err error
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.closing = true
		h.mu.Unlock()
		h.setState(StateDisconnecting)

		drained := make(chan struct{})
		go func() {
			h.inflight.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			err = ctx.Err()
			l.logger.Warn("closing broker connection with transactions in flight", "error", err)
		}

		if cerr := l.client.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		h.end(StateDisconnected)
		l.logger.Info("listener stopped", "broker", l.cfg.BrokerName)
	})
	return err
}
