package models

import "fmt"

// ReactionKind selects which counter of a post a reaction contributes to.
type ReactionKind uint8

const (
	Like ReactionKind = iota
	Dislike
)

func (k ReactionKind) String() string {
	switch k {
	case Like:
		return "like"
	case Dislike:
		return "dislike"
	default:
		return fmt.Sprintf("ReactionKind(%d)", uint8(k))
	}
}

func (k ReactionKind) MarshalText() ([]byte, error) {
	switch k {
	case Like, Dislike:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("unknown reaction kind %d", uint8(k))
}

func (k *ReactionKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "like":
		*k = Like
	case "dislike":
		*k = Dislike
	default:
		return fmt.Errorf("unknown reaction kind %q", text)
	}
	return nil
}

// Post is the parent record carrying the reaction counters.
type Post struct {
	Address  Identity `json:"address"`
	Author   Identity `json:"author"`
	Likes    uint64   `json:"likes"`
	Dislikes uint64   `json:"dislikes"`
}

// Reaction is one author's like or dislike on a post. Deposit is the amount
// reserved from the author when the reaction was stored; it goes back to the
// author when the reaction is removed.
type Reaction struct {
	Address Identity     `json:"address"`
	Author  Identity     `json:"author"`
	Parent  Identity     `json:"parent"`
	Kind    ReactionKind `json:"kind"`
	Deposit uint64       `json:"deposit"`
}

// ReactionChange is the unit of work applied to a post and its reaction.
// Delta is +1 when a reaction is added and -1 when it is removed.
type ReactionChange struct {
	Reaction Reaction
	Delta    int
}

// Added reports whether the change stores a new reaction.
func (c ReactionChange) Added() bool {
	return c.Delta > 0
}
