package ledger

import (
	"context"

	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
)

// Executor performs already validated moves. The debit, the credit and the
// event are one unit: the store discards the move if publishing fails.
type Executor struct {
	store    interfaces.VaultStore
	notifier *Notifier
}

func NewExecutor(store interfaces.VaultStore, notifier *Notifier) *Executor {
	return &Executor{store: store, notifier: notifier}
}

func (e *Executor) Deposit(ctx context.Context, v models.Vault, depositor models.Identity, amount uint64) (events.DepositEvent, error) {
	mv := models.Movement{
		Kind:   models.MovementDeposit,
		Vault:  v.Address,
		From:   depositor,
		To:     v.Address,
		Amount: amount,
	}
	ev := e.notifier.depositEvent(mv)
	if err := e.store.Transfer(ctx, mv, e.notifier.emit(events.TopicDeposit, ev)); err != nil {
		return events.DepositEvent{}, fromStore(err)
	}
	return ev, nil
}

func (e *Executor) Withdraw(ctx context.Context, v models.Vault, authority models.Identity, amount uint64) (events.WithdrawEvent, error) {
	mv := models.Movement{
		Kind:   models.MovementWithdraw,
		Vault:  v.Address,
		From:   v.Address,
		To:     authority,
		Amount: amount,
	}
	ev := e.notifier.withdrawEvent(mv)
	if err := e.store.Transfer(ctx, mv, e.notifier.emit(events.TopicWithdraw, ev)); err != nil {
		return events.WithdrawEvent{}, fromStore(err)
	}
	return ev, nil
}
