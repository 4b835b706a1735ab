package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/auth"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage"
	"go.uber.org/zap"
)

// Recorder receives the outcome of every operation.
type Recorder interface {
	Record(op, outcome string, amount uint64)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string, uint64) {}

// Ledger is the custody engine for vaults. Each call is a synchronous
// check, move, notify sequence; callers must serialise operations touching the
// same accounts.
type Ledger struct {
	store    interfaces.VaultStore
	checker  Checker
	guard    Guard
	executor *Executor
	logger   *zap.Logger
	recorder Recorder
}

type Option func(*Ledger)

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithRecorder(r Recorder) Option {
	return func(l *Ledger) { l.recorder = r }
}

// NewLedger wires the checker, guard, executor and notifier around store and
// publisher.
func NewLedger(store interfaces.VaultStore, publisher interfaces.EventPublisher, cfg Config, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		checker:  NewChecker(cfg),
		executor: NewExecutor(store, NewNotifier(publisher)),
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Deposit moves amount lamports from the depositor's account into the vault.
func (l *Ledger) Deposit(ctx context.Context, vault models.Identity, depositor auth.Principal, amount uint64) (events.DepositEvent, error) {
	ev, err := l.deposit(ctx, vault, depositor, amount)
	l.observe("deposit", vault, depositor.Identity(), amount, err)
	return ev, err
}

func (l *Ledger) deposit(ctx context.Context, vault models.Identity, depositor auth.Principal, amount uint64) (events.DepositEvent, error) {
	if err := l.guard.Signed(depositor); err != nil {
		return events.DepositEvent{}, err
	}
	v, err := l.Vault(ctx, vault)
	if err != nil {
		return events.DepositEvent{}, err
	}
	available, err := l.store.GetBalance(ctx, depositor.Identity())
	if err != nil {
		return events.DepositEvent{}, fmt.Errorf("load depositor balance: %w", err)
	}
	if err := l.checker.CheckDeposit(v, available, amount); err != nil {
		return events.DepositEvent{}, err
	}
	return l.executor.Deposit(ctx, v, depositor.Identity(), amount)
}

// Withdraw moves amount lamports from the vault to its authority. The caller
// must be the authority; that is checked before any balance is read.
func (l *Ledger) Withdraw(ctx context.Context, vault models.Identity, authority auth.Principal, amount uint64) (events.WithdrawEvent, error) {
	ev, err := l.withdraw(ctx, vault, authority, amount)
	l.observe("withdraw", vault, authority.Identity(), amount, err)
	return ev, err
}

func (l *Ledger) withdraw(ctx context.Context, vault models.Identity, authority auth.Principal, amount uint64) (events.WithdrawEvent, error) {
	v, err := l.Vault(ctx, vault)
	if err != nil {
		return events.WithdrawEvent{}, err
	}
	if err := l.guard.Authorize(v, authority); err != nil {
		return events.WithdrawEvent{}, err
	}
	receiving, err := l.store.GetBalance(ctx, authority.Identity())
	if err != nil {
		return events.WithdrawEvent{}, fmt.Errorf("load authority balance: %w", err)
	}
	if err := l.checker.CheckWithdraw(v, receiving, amount); err != nil {
		return events.WithdrawEvent{}, err
	}
	return l.executor.Withdraw(ctx, v, authority.Identity(), amount)
}

// Vault returns the current state of a vault.
func (l *Ledger) Vault(ctx context.Context, address models.Identity) (models.Vault, error) {
	v, err := l.store.GetVault(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Vault{}, fmt.Errorf("%w: %s", ErrVaultNotFound, address)
	}
	if err != nil {
		return models.Vault{}, fmt.Errorf("load vault %s: %w", address, err)
	}
	return v, nil
}

// Balance returns the lamports held by any account.
func (l *Ledger) Balance(ctx context.Context, address models.Identity) (uint64, error) {
	return l.store.GetBalance(ctx, address)
}

func (l *Ledger) observe(op string, vault, caller models.Identity, amount uint64, err error) {
	kind := ErrorKind(err)
	l.recorder.Record(op, kind, amount)

	fields := []zap.Field{
		zap.String("op", op),
		zap.Stringer("vault", vault),
		zap.Stringer("caller", caller),
		zap.Uint64("amount", amount),
	}
	switch kind {
	case "ok":
		l.logger.Info("vault operation applied", fields...)
	case "internal":
		l.logger.Error("vault operation failed", append(fields, zap.Error(err))...)
	default:
		l.logger.Warn("vault operation rejected", append(fields, zap.String("reason", kind), zap.Error(err))...)
	}
}
