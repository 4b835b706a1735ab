package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

const (
	TopicDeposit         = "vault_deposit"
	TopicWithdraw        = "vault_withdraw"
	TopicReactionRemoved = "reaction_removed"
	TopicReactionAdded   = "reaction_added"
)

// DepositEvent is emitted once per successful deposit.
type DepositEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	Amount     uint64          `json:"amount"`
	Depositor  models.Identity `json:"depositor"`
	Vault      models.Identity `json:"vault"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// WithdrawEvent is emitted once per successful withdrawal.
type WithdrawEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	Amount     uint64          `json:"amount"`
	Authority  models.Identity `json:"authority"`
	Vault      models.Identity `json:"vault"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type ReactionRemovedEvent struct {
	EventID    uuid.UUID           `json:"event_id"`
	Reaction   models.Identity     `json:"reaction"`
	Post       models.Identity     `json:"post"`
	Author     models.Identity     `json:"author"`
	Kind       models.ReactionKind `json:"kind"`
	Refund     uint64              `json:"refund"`
	OccurredAt time.Time           `json:"occurred_at"`
}

type ReactionAddedEvent struct {
	EventID    uuid.UUID           `json:"event_id"`
	Reaction   models.Identity     `json:"reaction"`
	Post       models.Identity     `json:"post"`
	Author     models.Identity     `json:"author"`
	Kind       models.ReactionKind `json:"kind"`
	Deposit    uint64              `json:"deposit"`
	OccurredAt time.Time           `json:"occurred_at"`
}
