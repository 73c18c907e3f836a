package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"github.com/tcbb-predictions/internal/domain"
)

// EventHandler receives decoded scoring events
type EventHandler func(ctx context.Context, event domain.ScoringEvent) error

// Subscriber reads scoring events through a consumer group
type Subscriber struct {
	group   sarama.ConsumerGroup
	topic   string
	handler EventHandler
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewSubscriber joins groupID on the given brokers
func NewSubscriber(brokers []string, topic, groupID string, fromOldest bool, handler EventHandler, logger *slog.Logger) (*Subscriber, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	if fromOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}
	return &Subscriber{group: group, topic: topic, handler: handler, logger: logger}, nil
}

// Run consumes until ctx is cancelled
func (s *Subscriber) Run(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-s.group.Errors():
				if !ok {
					return
				}
				s.logger.Error("consumer group error", "error", err)
			}
		}
	}()
	defer s.wg.Wait()

	for {
		if err := s.group.Consume(ctx, []string{s.topic}, &groupHandler{sub: s}); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			s.logger.Error("error from consumer", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group
func (s *Subscriber) Close() error {
	return s.group.Close()
}

// decodeEvent parses one message. The event_type header, when present,
// must agree with the payload.
func decodeEvent(msg *sarama.ConsumerMessage) (domain.ScoringEvent, error) {
	var event domain.ScoringEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return event, fmt.Errorf("decoding event: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return event, fmt.Errorf("event without id or type at offset %d", msg.Offset)
	}
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == "event_type" && string(h.Value) != string(event.Type) {
			return event, fmt.Errorf("event %s: header type %q does not match %q", event.ID, h.Value, event.Type)
		}
	}
	return event, nil
}

// groupHandler implements sarama.ConsumerGroupHandler
type groupHandler struct {
	sub *Subscriber
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim hands every decodable message to the handler. Undecodable
// messages are logged and skipped.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			event, err := decodeEvent(message)
			if err != nil {
				h.sub.logger.Warn("skipping message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}
			if err := h.sub.handler(session.Context(), event); err != nil {
				return fmt.Errorf("handling event %s: %w", event.ID, err)
			}
			session.MarkMessage(message, "")
		}
	}
}
