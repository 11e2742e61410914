// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"payment-relay/pkg/api"
	"payment-relay/pkg/broker"
	"payment-relay/pkg/config"
	"payment-relay/pkg/direct"
	"payment-relay/pkg/listener"
	"payment-relay/pkg/logger"
	"payment-relay/pkg/metrics"
	"payment-relay/pkg/processor"
	"payment-relay/pkg/reconcile"
	"payment-relay/pkg/simulate"
	"payment-relay/pkg/store"
)

const (
	shutdownTimeout   = 15 * time.Second
	simulatedDevices  = 5
	readHeaderTimeout = 10 * time.Second
)

const (
	modeChannel = "channel"
	modeDirect  = "direct"
)

// PaymentRelay owns every long-lived component of the service.
type PaymentRelay struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	store     store.Store
	processor *processor.Processor
	direct    *direct.Invoker

	client   broker.Client
	listener *listener.Listener
	handle   *listener.Handle
}

func NewPaymentRelay(ctx context.Context, cfg config.Config, log *slog.Logger) (*PaymentRelay, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error during initialization: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	st, err := store.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL, store.WithTimeout(cfg.StoreTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := st.Initialize(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	proc := processor.New(st,
		processor.WithDelay(cfg.ProcessingDelay),
		processor.WithLogger(log),
		processor.WithMetrics(m),
	)

	return &PaymentRelay{
		cfg:       cfg,
		logger:    log,
		metrics:   m,
		store:     st,
		processor: proc,
		direct:    direct.New(proc, simulate.NewGenerator(simulatedDevices), log),
	}, nil
}

// StartListener attaches the relay to the broker. When the broker stays
// unreachable the relay keeps running in direct mode.
func (p *PaymentRelay) StartListener(ctx context.Context) {
	if p.cfg.UseSimulateDirect {
		p.logger.Info("message channel disabled, using direct invocation")
		return
	}

	bcfg := p.cfg.Broker()
	client, err := broker.New(bcfg)
	if err != nil {
		p.logger.Error("failed to create broker client, using direct invocation", "error", err)
		return
	}

	l := listener.New(client, p.processor, listener.Config{
		InboundTopic:  p.cfg.TopicRequests,
		OutboundTopic: p.cfg.TopicResponses,
		MaxRetries:    p.cfg.MaxRetries,
		RetryDelay:    p.cfg.RetryDelay,
		BrokerName:    bcfg.Describe(),
	}, listener.WithLogger(p.logger), listener.WithMetrics(p.metrics))

	h, err := l.Run(ctx)
	if err != nil {
		p.logger.Error("message channel unavailable, falling back to direct invocation", "error", err)
		_ = client.Close()
		return
	}
	p.client, p.listener, p.handle = client, l, h
}

func (p *PaymentRelay) Health() api.Health {
	if p.handle == nil {
		return api.Health{Status: "ok", Mode: modeDirect, Listener: string(listener.StateDisconnected)}
	}
	return api.Health{Status: "ok", Mode: modeChannel, Listener: string(p.handle.State())}
}

func (p *PaymentRelay) Router() http.Handler {
	opts := []api.Option{
		api.WithDirect(p.direct),
		api.WithHealth(p.Health),
		api.WithLogger(p.logger),
	}
	if p.handle != nil && p.handle.State() == listener.StateSubscribed {
		pub := simulate.NewPublisher(p.client, p.cfg.TopicRequests, simulate.NewGenerator(simulatedDevices), 0)
		opts = append(opts, api.WithPublisher(pub))
	}
	return api.NewRouter(api.New(p.store, opts...), p.cfg.AllowedOrigins())
}

// Close stops the listener before the store so in-flight transactions can
// still record their verdicts.
func (p *PaymentRelay) Close(ctx context.Context) error {
	var errs []error
	if p.listener != nil {
		if err := p.listener.Stop(ctx, p.handle); err != nil {
			errs = append(errs, fmt.Errorf("stop listener: %w", err))
		}
	}
	if err := p.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	cfg, err = config.ResolveSecrets(ctx, cfg)
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	relay, err := NewPaymentRelay(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := relay.Close(closeCtx); err != nil {
			log.Error("shutdown incomplete", "error", err)
		}
	}()

	relay.StartListener(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		srv := &http.Server{Addr: cfg.HTTPAddr(), Handler: relay.Router(), ReadHeaderTimeout: readHeaderTimeout}
		log.Info("http server listening", "addr", srv.Addr)
		return serve(gctx, srv)
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
			log.Info("metrics server listening", "addr", srv.Addr)
			return serve(gctx, srv)
		})
	}

	if cfg.ReconcileSchedule != "" {
		rec := reconcile.New(relay.store, cfg.ReconcileAfter,
			reconcile.WithLogger(log),
			reconcile.WithMetrics(relay.metrics),
		)
		g.Go(func() error {
			return rec.Run(gctx, cfg.ReconcileSchedule)
		})
	}

	return g.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("payment relay exited", "error", err)
		os.Exit(1)
	}
}
