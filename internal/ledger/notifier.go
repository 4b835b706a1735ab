package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
)

// Notifier builds transfer records and hands them to the publisher from
// inside the store's unit of work, so a record exists exactly when the move
// does.
type Notifier struct {
	publisher interfaces.EventPublisher
	now       func() time.Time
	newID     func() uuid.UUID
}

func NewNotifier(publisher interfaces.EventPublisher) *Notifier {
	return &Notifier{publisher: publisher, now: time.Now, newID: uuid.New}
}

func (n *Notifier) depositEvent(mv models.Movement) events.DepositEvent {
	return events.DepositEvent{
		EventID:    n.newID(),
		Amount:     mv.Amount,
		Depositor:  mv.From,
		Vault:      mv.Vault,
		OccurredAt: n.now().UTC(),
	}
}

func (n *Notifier) withdrawEvent(mv models.Movement) events.WithdrawEvent {
	return events.WithdrawEvent{
		EventID:    n.newID(),
		Amount:     mv.Amount,
		Authority:  mv.To,
		Vault:      mv.Vault,
		OccurredAt: n.now().UTC(),
	}
}

// emit returns a commit hook publishing event on topic.
func (n *Notifier) emit(topic string, event any) interfaces.CommitFunc {
	return func(ctx context.Context) error {
		if err := n.publisher.Publish(ctx, topic, event); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	}
}
