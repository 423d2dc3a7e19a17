// Package audit publishes authorization and workflow events to the
// compliance log. Publishing is fire-and-forget: a full queue or a broker
// failure is logged and swallowed, never surfaced to the operation that
// produced the event.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

type Action string

const (
	AccessDenied     Action = "access_denied"
	RelationshipMade Action = "relationship_created"
	RelationshipEdit Action = "relationship_status_changed"
	RequestSubmitted Action = "access_request_submitted"
	RequestApproved  Action = "access_request_approved"
	RequestRejected  Action = "access_request_rejected"
	CompanySwitched  Action = "company_switched"
)

// Event is one structured compliance record.
type Event struct {
	Action Action `json:"action"`
	// ActorID is the user who performed (or attempted) the action.
	ActorID uuid.UUID `json:"actor_id"`
	// SubjectID is the user the action was about, when distinct from the
	// actor (e.g. the requester on an approval).
	SubjectID uuid.UUID `json:"subject_id,omitempty"`
	// CompanyID is the company context the action ran under.
	CompanyID uuid.UUID `json:"company_id,omitempty"`
	// AttemptedCompanyID is set on denials: the tenant the actor tried to
	// reach.
	AttemptedCompanyID uuid.UUID `json:"attempted_company_id,omitempty"`
	EntityType         string    `json:"entity_type,omitempty"`
	EntityID           uuid.UUID `json:"entity_id,omitempty"`
	Outcome            string    `json:"outcome"`
	Reason             string    `json:"reason,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Sink accepts audit events. Implementations must not block the caller and
// must not let their own failures propagate.
type Sink interface {
	Record(event Event)
}

// NopSink discards every event. Used in tests and before the producer is up.
type NopSink struct{}

func (NopSink) Record(Event) {}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer ships audit events to Kafka from a buffered queue.
type Producer struct {
	writer    KafkaWriter
	events    chan Event
	logger    *zap.Logger
	closeChan chan struct{}
}

func NewProducer(brokers []string, logger *zap.Logger, topic string) (*Producer, error) {
	// Create topic if it doesn't exist
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	topicConfigs := []kafka.TopicConfig{
		{
			Topic:             topic,
			NumPartitions:     3,
			ReplicationFactor: 1,
		},
	}

	if err := conn.CreateTopics(topicConfigs...); err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.Error(err))
	}

	p := &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
			Topic:    topic,
		},
		events:    make(chan Event, 1000),
		logger:    logger.Named("audit_producer"),
		closeChan: make(chan struct{}),
	}

	go p.eventLoop()
	return p, nil
}

// Record enqueues an event without blocking. If the queue is full the event
// is dropped and the drop is logged; the originating operation is never
// affected.
func (p *Producer) Record(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case p.events <- event:
	default:
		p.logger.Warn("audit queue full, dropping event",
			zap.String("action", string(event.Action)),
			zap.String("actor_id", event.ActorID.String()),
		)
	}
}

func (p *Producer) eventLoop() {
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		case <-p.closeChan:
			return
		}
	}
}

func (p *Producer) sendEvent(ctx context.Context, event Event) {
	value, err := jsonMarshal(event)
	if err != nil {
		p.logger.Error("Failed to serialize audit event",
			zap.Error(err),
			zap.String("action", string(event.Action)),
		)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ActorID.String()),
		Value: value,
	})
	if err != nil {
		p.logger.Error("Failed to publish audit event",
			zap.Error(err),
			zap.String("action", string(event.Action)),
			zap.String("actor_id", event.ActorID.String()),
		)
		return
	}
}

func (p *Producer) Close() {
	close(p.closeChan)
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}
