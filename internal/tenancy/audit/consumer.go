package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer reads audit events back off the compliance topic, for the
// reporting side (retention jobs, anomaly alerts).
type Consumer struct {
	reader  *kafka.Reader
	logger  *zap.Logger
	handler func(context.Context, Event) error
}

func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
			Dialer:  kafka.DefaultDialer,
		}),
		logger: logger.Named("audit_consumer"),
	}
}

func (c *Consumer) RegisterHandler(fn func(context.Context, Event) error) {
	c.handler = fn
}

// ComplianceLogHandler writes each consumed event to the structured log,
// giving the compliance trail a queryable sink without extra storage.
func ComplianceLogHandler(logger *zap.Logger) func(context.Context, Event) error {
	log := logger.Named("compliance_log")
	return func(_ context.Context, event Event) error {
		log.Info("audit event",
			zap.String("action", string(event.Action)),
			zap.String("actor_id", event.ActorID.String()),
			zap.String("company_id", event.CompanyID.String()),
			zap.String("entity_type", event.EntityType),
			zap.String("outcome", event.Outcome),
			zap.String("reason", event.Reason),
			zap.Time("occurred_at", event.OccurredAt),
		)
		return nil
	}
}

func (c *Consumer) Start(ctx context.Context) {
	if c.handler == nil {
		c.logger.Error("no handler registered, consumer not started")
		return
	}
	go func() {
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error("Failed to fetch message", zap.Error(err))
				continue
			}

			var event Event
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				c.logger.Error("Failed to parse audit event",
					zap.Error(err),
					zap.ByteString("value", msg.Value),
				)
				continue
			}

			if err := c.handler(ctx, event); err != nil {
				c.logger.Error("Failed to handle audit event",
					zap.Error(err),
					zap.String("action", string(event.Action)),
				)
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("Failed to commit message",
					zap.Error(err),
					zap.String("action", string(event.Action)),
				)
			}
		}
	}()
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka reader", zap.Error(err))
	}
}
