// Package social keeps the like and dislike counters of posts.
package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/auth"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage"
	"go.uber.org/zap"
)

// DefaultReactionDeposit is reserved from the author for every stored reaction.
const DefaultReactionDeposit uint64 = 1_141_440

type Recorder interface {
	Record(op, outcome string, amount uint64)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, string, uint64) {}

type Reactions struct {
	store     interfaces.ReactionStore
	publisher interfaces.EventPublisher
	deposit   uint64
	logger    *zap.Logger
	recorder  Recorder
	now       func() time.Time
	newID     func() uuid.UUID
}

type Option func(*Reactions)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Reactions) { r.logger = logger }
}

func WithRecorder(rec Recorder) Option {
	return func(r *Reactions) { r.recorder = rec }
}

func WithDeposit(lamports uint64) Option {
	return func(r *Reactions) { r.deposit = lamports }
}

func NewReactions(store interfaces.ReactionStore, publisher interfaces.EventPublisher, opts ...Option) *Reactions {
	r := &Reactions{
		store:     store,
		publisher: publisher,
		deposit:   DefaultReactionDeposit,
		logger:    zap.NewNop(),
		recorder:  nopRecorder{},
		now:       time.Now,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RemoveReaction deletes the caller's reaction, takes one off the matching
// counter of the post and refunds the reaction's deposit to its author.
func (s *Reactions) RemoveReaction(ctx context.Context, reaction models.Identity, caller auth.Principal) (events.ReactionRemovedEvent, error) {
	ev, err := s.removeReaction(ctx, reaction, caller)
	s.observe("remove_reaction", reaction, caller.Identity(), ev.Refund, err)
	return ev, err
}

func (s *Reactions) removeReaction(ctx context.Context, address models.Identity, caller auth.Principal) (events.ReactionRemovedEvent, error) {
	r, err := s.store.GetReaction(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return events.ReactionRemovedEvent{}, fmt.Errorf("%w: %s", ErrReactionNotFound, address)
	}
	if err != nil {
		return events.ReactionRemovedEvent{}, fmt.Errorf("load reaction %s: %w", address, err)
	}
	if !caller.Verified() || caller.Identity() != r.Author {
		return events.ReactionRemovedEvent{}, fmt.Errorf("%w: %s did not author reaction %s", ErrNotAuthorized, caller.Identity(), address)
	}

	post, err := s.post(ctx, r.Parent)
	if err != nil {
		return events.ReactionRemovedEvent{}, err
	}
	if counterOf(post, r.Kind) == 0 {
		return events.ReactionRemovedEvent{}, fmt.Errorf("%w: post %s", counterFloor(r.Kind), post.Address)
	}

	ev := events.ReactionRemovedEvent{
		EventID:    s.newID(),
		Reaction:   r.Address,
		Post:       r.Parent,
		Author:     r.Author,
		Kind:       r.Kind,
		Refund:     r.Deposit,
		OccurredAt: s.now().UTC(),
	}
	change := models.ReactionChange{Reaction: r, Delta: -1}
	if err := s.store.ApplyReaction(ctx, change, s.emit(events.TopicReactionRemoved, ev)); err != nil {
		return events.ReactionRemovedEvent{}, fromStore(r.Kind, err)
	}
	return ev, nil
}

// AddReaction stores a reaction of kind by caller on post under address and
// reserves the reaction deposit from the caller's balance. An author holds at
// most one reaction per post, of either kind.
func (s *Reactions) AddReaction(ctx context.Context, address, post models.Identity, kind models.ReactionKind, caller auth.Principal) (events.ReactionAddedEvent, error) {
	ev, err := s.addReaction(ctx, address, post, kind, caller)
	s.observe("add_reaction", address, caller.Identity(), ev.Deposit, err)
	return ev, err
}

func (s *Reactions) addReaction(ctx context.Context, address, postAddr models.Identity, kind models.ReactionKind, caller auth.Principal) (events.ReactionAddedEvent, error) {
	if !caller.Verified() {
		return events.ReactionAddedEvent{}, fmt.Errorf("%w: unauthenticated caller", ErrNotAuthorized)
	}
	if kind != models.Like && kind != models.Dislike {
		return events.ReactionAddedEvent{}, fmt.Errorf("unknown reaction kind %d", kind)
	}

	_, err := s.store.GetReaction(ctx, address)
	if err == nil {
		return events.ReactionAddedEvent{}, fmt.Errorf("%w: %s", ErrReactionExists, address)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return events.ReactionAddedEvent{}, fmt.Errorf("load reaction %s: %w", address, err)
	}
	held, err := s.store.FindReaction(ctx, caller.Identity(), postAddr)
	if err == nil {
		return events.ReactionAddedEvent{}, fmt.Errorf("%w: %s already reacted to %s with %s", ErrReactionExists, caller.Identity(), postAddr, held.Address)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return events.ReactionAddedEvent{}, fmt.Errorf("load reaction of %s on %s: %w", caller.Identity(), postAddr, err)
	}

	post, err := s.post(ctx, postAddr)
	if err != nil {
		return events.ReactionAddedEvent{}, err
	}
	if counterOf(post, kind) == ^uint64(0) {
		return events.ReactionAddedEvent{}, fmt.Errorf("%w: post %s", counterCeiling(kind), post.Address)
	}
	available, err := s.store.GetBalance(ctx, caller.Identity())
	if err != nil {
		return events.ReactionAddedEvent{}, fmt.Errorf("load author balance: %w", err)
	}
	if available < s.deposit {
		return events.ReactionAddedEvent{}, fmt.Errorf("%w: author holds %d, reaction deposit is %d", ErrInsufficientBalance, available, s.deposit)
	}

	r := models.Reaction{
		Address: address,
		Author:  caller.Identity(),
		Parent:  post.Address,
		Kind:    kind,
		Deposit: s.deposit,
	}
	ev := events.ReactionAddedEvent{
		EventID:    s.newID(),
		Reaction:   r.Address,
		Post:       r.Parent,
		Author:     r.Author,
		Kind:       r.Kind,
		Deposit:    r.Deposit,
		OccurredAt: s.now().UTC(),
	}
	change := models.ReactionChange{Reaction: r, Delta: 1}
	if err := s.store.ApplyReaction(ctx, change, s.emit(events.TopicReactionAdded, ev)); err != nil {
		return events.ReactionAddedEvent{}, fromStore(kind, err)
	}
	return ev, nil
}

// Post returns the current counters of a post.
func (s *Reactions) Post(ctx context.Context, address models.Identity) (models.Post, error) {
	return s.post(ctx, address)
}

func (s *Reactions) post(ctx context.Context, address models.Identity) (models.Post, error) {
	post, err := s.store.GetPost(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Post{}, fmt.Errorf("%w: %s", ErrPostNotFound, address)
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("load post %s: %w", address, err)
	}
	return post, nil
}

func (s *Reactions) emit(topic string, event any) interfaces.CommitFunc {
	return func(ctx context.Context) error {
		if err := s.publisher.Publish(ctx, topic, event); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	}
}

func (s *Reactions) observe(op string, reaction, caller models.Identity, amount uint64, err error) {
	kind := ErrorKind(err)
	s.recorder.Record(op, kind, amount)

	fields := []zap.Field{
		zap.String("op", op),
		zap.Stringer("reaction", reaction),
		zap.Stringer("caller", caller),
	}
	switch kind {
	case "ok":
		s.logger.Info("reaction applied", fields...)
	case "internal":
		s.logger.Error("reaction failed", append(fields, zap.Error(err))...)
	default:
		s.logger.Warn("reaction rejected", append(fields, zap.String("reason", kind), zap.Error(err))...)
	}
}

func counterOf(p models.Post, kind models.ReactionKind) uint64 {
	if kind == models.Dislike {
		return p.Dislikes
	}
	return p.Likes
}
