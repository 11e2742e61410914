// Command simulator publishes random payment requests to the relay and
// reports the verdicts it receives back.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"payment-relay/pkg/broker"
	"payment-relay/pkg/simulate"
	"payment-relay/pkg/types"
)

type options struct {
	count    int
	devices  int
	interval time.Duration
	wait     time.Duration

	kind         string
	mqttHost     string
	mqttPort     int
	natsURL      string
	kafkaBrokers string

	requestTopic  string
	responseTopic string
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "simulator",
		Short:        "Publish random payment requests and collect the verdicts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.count <= 0 {
				return errors.New("--count must be positive")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cmd, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.count, "count", "n", 10, "number of transactions to publish")
	f.IntVar(&opts.devices, "devices", 5, "number of simulated devices")
	f.DurationVar(&opts.interval, "interval", time.Second, "pause between transactions")
	f.DurationVar(&opts.wait, "wait", 10*time.Second, "how long to wait for outstanding responses")
	f.StringVar(&opts.kind, "broker", broker.KindMQTT, "broker kind: mqtt, nats or kafka")
	f.StringVar(&opts.mqttHost, "mqtt-host", "localhost", "MQTT broker host")
	f.IntVar(&opts.mqttPort, "mqtt-port", 1883, "MQTT broker port")
	f.StringVar(&opts.natsURL, "nats-url", "nats://localhost:4222", "NATS server URL")
	f.StringVar(&opts.kafkaBrokers, "kafka-brokers", "localhost:9092", "comma separated Kafka brokers")
	f.StringVar(&opts.requestTopic, "request-topic", "payments/requests", "topic the relay consumes")
	f.StringVar(&opts.responseTopic, "response-topic", "payments/responses", "topic the relay publishes verdicts on")
	return cmd
}

func brokerConfig(opts options) broker.Config {
	clientID := "payment-simulator-" + uuid.NewString()[:8]
	return broker.Config{
		Kind: opts.kind,
		MQTT: broker.MQTTConfig{Host: opts.mqttHost, Port: opts.mqttPort, ClientID: clientID},
		NATS: broker.NATSConfig{URL: opts.natsURL, Name: clientID},
		Kafka: broker.KafkaConfig{
			Brokers: strings.Split(opts.kafkaBrokers, ","),
			GroupID: clientID,
		},
	}
}

func run(ctx context.Context, cmd *cobra.Command, opts options) error {
	out := cmd.OutOrStdout()
	cfg := brokerConfig(opts)

	client, err := broker.New(cfg)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx, func(err error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "connection lost: %v\n", err)
	}); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Describe(), err)
	}
	defer client.Close()

	collector := NewCollector()
	err = client.Subscribe(opts.responseTopic, func(msg broker.Message) {
		resp, err := types.DecodeResponse(msg.Payload)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "bad response: %v\n", err)
			return
		}
		collector.Record(resp)
		fmt.Fprintf(out, "<- %s %s\n", resp.ID, resp.Status)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", opts.responseTopic, err)
	}

	fmt.Fprintf(out, "Publishing %d transactions to %s on %s\n", opts.count, opts.requestTopic, cfg.Describe())
	start := time.Now()

	pub := simulate.NewPublisher(&expectingClient{Client: client, collector: collector}, opts.requestTopic,
		simulate.NewGenerator(opts.devices), opts.interval)
	sent, pubErr := pub.Publish(ctx, opts.count)
	for _, req := range sent {
		fmt.Fprintf(out, "-> %s %.2f %s\n", req.ID, req.Amount, req.DeviceID)
	}
	collector.Seal()

	select {
	case <-collector.Done():
	case <-time.After(opts.wait):
	case <-ctx.Done():
	}

	collector.Summary(time.Since(start)).Print(out)
	return pubErr
}

// expectingClient registers each request with the collector before it is
// published so a fast response is never reported as unknown.
type expectingClient struct {
	broker.Client
	collector *Collector
}

func (c *expectingClient) Publish(ctx context.Context, topic string, payload []byte) error {
	req, err := types.DecodeRequest(payload)
	if err != nil {
		return err
	}
	c.collector.Expect(req)
	if err := c.Client.Publish(ctx, topic, payload); err != nil {
		c.collector.Forget(req.ID)
		return err
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
