package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/scrim-arena/internal/config"
	"github.com/scrim-arena/internal/consensus"
	"github.com/scrim-arena/internal/domain"
)

// Event types accepted on the match-events topic.
const (
	EventJoin   = "join"
	EventLeave  = "leave"
	EventReport = "report"
)

// MatchEvent is one platform intent delivered through Kafka: a join click,
// a leave, or a captain's score report.
type MatchEvent struct {
	Type     string    `json:"type"`
	MatchID  string    `json:"match_id"`
	PlayerID string    `json:"player_id"`
	Side     string    `json:"side,omitempty"`
	Payload  string    `json:"payload,omitempty"`
	SentAt   time.Time `json:"sent_at,omitempty"`
}

// EventHandler routes match events; implemented by the session manager.
type EventHandler interface {
	Join(ctx context.Context, id uuid.UUID, playerID string, side domain.Side) error
	Leave(ctx context.Context, id uuid.UUID, playerID string) error
	SubmitReport(ctx context.Context, id uuid.UUID, playerID, raw string) (*consensus.Result, error)
}

// Consumer consumes match events from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       EventHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler EventHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			// Check if context was cancelled
			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	// Handle errors in separate goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition. Events are
// dispatched one at a time so same-match events keyed to one partition
// apply in arrival order.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var event MatchEvent
			if err := json.Unmarshal(message.Value, &event); err != nil {
				h.consumer.logger.Warn("failed to unmarshal event",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				session.MarkMessage(message, "")
				continue
			}

			h.consumer.dispatch(event)
			session.MarkMessage(message, "")
		}
	}
}

// dispatch routes one event to the session manager. User errors are normal
// outcomes at this boundary; there is no requester to bounce them to, so
// they are logged at debug level.
func (c *Consumer) dispatch(event MatchEvent) {
	matchID, err := uuid.Parse(event.MatchID)
	if err != nil {
		c.logger.Warn("event has invalid match id", "match_id", event.MatchID)
		return
	}
	if event.PlayerID == "" {
		c.logger.Warn("event missing player id", "match_id", event.MatchID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch event.Type {
	case EventJoin:
		err = c.handler.Join(ctx, matchID, event.PlayerID, domain.Side(event.Side))
	case EventLeave:
		err = c.handler.Leave(ctx, matchID, event.PlayerID)
	case EventReport:
		_, err = c.handler.SubmitReport(ctx, matchID, event.PlayerID, event.Payload)
	default:
		c.logger.Warn("unknown event type", "type", event.Type)
		return
	}

	if err != nil {
		if domain.IsUserError(err) {
			c.logger.Debug("event rejected",
				"type", event.Type,
				"match_id", event.MatchID,
				"player_id", event.PlayerID,
				"reason", err,
			)
			return
		}
		c.logger.Error("event dispatch failed",
			"type", event.Type,
			"match_id", event.MatchID,
			"player_id", event.PlayerID,
			"error", err,
		)
	}
}
