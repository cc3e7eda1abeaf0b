// Command alert-sender publishes synthetic or recorded EDR and NGAV alerts to
// a Kafka topic or NATS subject for exercising the consumer.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telhawk-systems/alertstream/common/logging"
	natsclient "github.com/telhawk-systems/alertstream/common/messaging/nats"
)

var (
	brokerKind = flag.String("kind", "kafka", "Broker kind: kafka or nats")
	brokers    = flag.String("brokers", "localhost:9092", "Comma separated Kafka brokers, or the NATS URL")
	topic      = flag.String("topic", "edr.alerts", "Kafka topic or NATS subject")
	alertKind  = flag.String("type", KindMixed, "Alert type: edr, ngav, mixed or unknown")
	count      = flag.Int("count", 100, "Number of alerts to send (0 for unlimited)")
	interval   = flag.Duration("interval", 100*time.Millisecond, "Interval between alerts")
	seed       = flag.Int64("seed", 0, "Faker seed (0 for random)")
	replayFile = flag.String("replay", "", "Send the alerts in this JSON Lines file instead of generating them")
	logLevel   = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()

	logger := logging.New(logging.ParseLevel(*logLevel), "text").With(logging.Service("alert-sender"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sender, err := newSender(*brokerKind, *brokers, *topic, logger)
	if err != nil {
		logger.Error("Failed to connect", logging.Error(err))
		os.Exit(1)
	}
	defer sender.Close()

	logger.Info("Starting alert sender",
		"kind", *brokerKind, "brokers", *brokers, logging.Topic(*topic),
		"type", *alertKind, "count", *count, "interval", *interval)

	var sent int
	if *replayFile != "" {
		sent, err = sendReplay(ctx, sender, *replayFile, *interval)
	} else {
		sent, err = sendGenerated(ctx, sender, NewGenerator(*seed), *alertKind, *count, *interval, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Sending stopped", "sent", sent, logging.Error(err))
		os.Exit(1)
	}
	logger.Info("Done", "sent", sent)
}

func newSender(kind, brokers, topic string, logger *logging.Logger) (Sender, error) {
	switch kind {
	case "kafka":
		return newKafkaSender(brokers, topic), nil
	case "nats":
		cfg := natsclient.DefaultConfig()
		cfg.URL = brokers
		cfg.Name = "alert-sender"
		cfg.Logger = logger
		client, err := natsclient.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return &natsSender{pub: client, subject: topic}, nil
	default:
		return nil, errors.New("kind must be kafka or nats")
	}
}

func sendGenerated(ctx context.Context, s Sender, g *Generator, kind string, count int, interval time.Duration, logger *logging.Logger) (int, error) {
	logger = logging.OrDefault(logger)
	sent := 0
	for count == 0 || sent < count {
		payload, key, err := g.Next(kind)
		if err != nil {
			return sent, err
		}
		if err := s.Send(ctx, key, payload); err != nil {
			return sent, err
		}
		sent++
		if sent%50 == 0 {
			logger.Info("Progress", "sent", sent)
		}
		if err := pause(ctx, interval); err != nil {
			return sent, err
		}
	}
	return sent, nil
}

func sendReplay(ctx context.Context, s Sender, path string, interval time.Duration) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sent := 0
	err = replay(f, func(line []byte) error {
		if err := s.Send(ctx, "", line); err != nil {
			return err
		}
		sent++
		return pause(ctx, interval)
	})
	return sent, err
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
