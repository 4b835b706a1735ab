// Package genesis creates accounts, vaults, posts and reactions from a YAML
// file. It is the administrative path for state the ledger itself never
// creates.
package genesis

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"gopkg.in/yaml.v3"
)

type Seeder interface {
	SeedAccount(ctx context.Context, address models.Identity, lamports uint64) error
	SeedVault(ctx context.Context, v models.Vault) error
	SeedPost(ctx context.Context, p models.Post) error
	SeedReaction(ctx context.Context, r models.Reaction) error
}

type Account struct {
	Address  models.Identity `yaml:"address"`
	Lamports uint64          `yaml:"lamports"`
}

type Vault struct {
	Address   models.Identity `yaml:"address"`
	Authority models.Identity `yaml:"authority"`
	Lamports  uint64          `yaml:"lamports"`
	Locked    bool            `yaml:"locked"`
}

type Post struct {
	Address  models.Identity `yaml:"address"`
	Author   models.Identity `yaml:"author"`
	Likes    uint64          `yaml:"likes"`
	Dislikes uint64          `yaml:"dislikes"`
}

type Reaction struct {
	Address models.Identity     `yaml:"address"`
	Author  models.Identity     `yaml:"author"`
	Post    models.Identity     `yaml:"post"`
	Kind    models.ReactionKind `yaml:"kind"`
	Deposit uint64              `yaml:"deposit"`
}

type File struct {
	Accounts  []Account  `yaml:"accounts"`
	Vaults    []Vault    `yaml:"vaults"`
	Posts     []Post     `yaml:"posts"`
	Reactions []Reaction `yaml:"reactions"`
}

func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return File{}, fmt.Errorf("parse genesis: %w", err)
	}
	return f, nil
}

func LoadFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer fh.Close()
	return Parse(fh)
}

// Apply writes f through s. Posts are created before reactions so that every
// reaction has its parent.
func Apply(ctx context.Context, s Seeder, f File) error {
	for _, a := range f.Accounts {
		if err := s.SeedAccount(ctx, a.Address, a.Lamports); err != nil {
			return fmt.Errorf("account %s: %w", a.Address, err)
		}
	}
	for _, v := range f.Vaults {
		if v.Authority.IsZero() {
			return fmt.Errorf("vault %s: authority is required", v.Address)
		}
		err := s.SeedVault(ctx, models.Vault{Address: v.Address, Authority: v.Authority, Balance: v.Lamports, Locked: v.Locked})
		if err != nil {
			return fmt.Errorf("vault %s: %w", v.Address, err)
		}
	}
	for _, p := range f.Posts {
		if err := s.SeedPost(ctx, models.Post{Address: p.Address, Author: p.Author, Likes: p.Likes, Dislikes: p.Dislikes}); err != nil {
			return fmt.Errorf("post %s: %w", p.Address, err)
		}
	}
	for _, r := range f.Reactions {
		err := s.SeedReaction(ctx, models.Reaction{Address: r.Address, Author: r.Author, Parent: r.Post, Kind: r.Kind, Deposit: r.Deposit})
		if err != nil {
			return fmt.Errorf("reaction %s: %w", r.Address, err)
		}
	}
	return nil
}
