package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes every event as one JSON message. The message key is the
// vault or post the event belongs to, so events of one account land on one
// partition in the order they were emitted.
type Publisher struct {
	writer messageWriter
	prefix string
	logger *zap.Logger
}

// NewPublisher creates a synchronous writer. Each Publish returns only after
// the brokers acknowledged the message, so a failure can still abort the
// operation that emitted it.
func NewPublisher(brokers []string, topicPrefix string, logger *zap.Logger) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, topicPrefix, logger)
}

func newPublisher(w messageWriter, topicPrefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: w, prefix: topicPrefix, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := kafka.Message{
		Topic: p.prefix + topic,
		Key:   []byte(partitionKey(event)),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("kafka write failed", zap.String("topic", msg.Topic), zap.Error(err))
		return err
	}
	p.logger.Debug("event published", zap.String("topic", msg.Topic), zap.ByteString("key", msg.Key))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func partitionKey(event any) string {
	switch ev := event.(type) {
	case events.DepositEvent:
		return ev.Vault.String()
	case events.WithdrawEvent:
		return ev.Vault.String()
	case events.ReactionRemovedEvent:
		return ev.Post.String()
	case events.ReactionAddedEvent:
		return ev.Post.String()
	}
	return ""
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
