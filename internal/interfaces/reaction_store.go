package interfaces

import (
	"context"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

type ReactionStore interface {
	GetPost(ctx context.Context, address models.Identity) (models.Post, error)
	GetReaction(ctx context.Context, address models.Identity) (models.Reaction, error)
	// FindReaction returns the reaction author holds on post, if any.
	FindReaction(ctx context.Context, author, post models.Identity) (models.Reaction, error)
	GetBalance(ctx context.Context, address models.Identity) (uint64, error)
	// ApplyReaction adjusts the parent counter, stores or deletes the reaction
	// and moves its deposit, all as one unit. Adding fails with
	// storage.ErrAlreadyExists when the address is taken or the author already
	// reacted to the post.
	ApplyReaction(ctx context.Context, change models.ReactionChange, commit CommitFunc) error
}
