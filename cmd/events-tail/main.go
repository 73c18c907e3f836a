// Command events-tail follows the scoring event topic and prints each event,
// one JSON object per line, for debugging downstream consumers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/kafka"
)

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "tcbb-scoring-events", "Kafka topic")
	group := flag.String("group", "tcbb-events-tail", "Consumer group ID")
	fromOldest := flag.Bool("from-oldest", false, "Start from the oldest retained offset")
	eventType := flag.String("type", "", "Only print events of this type")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	out := json.NewEncoder(os.Stdout)
	emit := func(_ context.Context, event domain.ScoringEvent) error {
		if *eventType != "" && string(event.Type) != *eventType {
			return nil
		}
		return out.Encode(event)
	}

	sub, err := kafka.NewSubscriber(strings.Split(*brokers, ","), *topic, *group, *fromOldest, emit, logger)
	if err != nil {
		logger.Error("failed to join consumer group", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("tailing scoring events", "brokers", *brokers, "topic", *topic, "group", *group)
	if err := sub.Run(ctx); err != nil {
		logger.Error("consumer stopped", "error", err)
	}
	if err := sub.Close(); err != nil {
		logger.Error("failed to close consumer group", "error", err)
	}
}
