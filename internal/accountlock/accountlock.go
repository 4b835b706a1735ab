// Package accountlock serialises operations that touch the same accounts.
// The ledger assumes its host does this; the HTTP server is that host.
package accountlock

import (
	"bytes"
	"slices"
	"sync"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locks hands out one mutex per account. Entries are dropped once nobody
// holds or waits for them.
type Locks struct {
	mapMu sync.Mutex // protects byID
	byID  map[models.Identity]*entry
}

func New() *Locks {
	return &Locks{byID: make(map[models.Identity]*entry)}
}

// Lock acquires every listed account in a fixed order, so two callers locking
// overlapping sets cannot deadlock. It returns the matching unlock func.
func (l *Locks) Lock(ids ...models.Identity) (unlock func()) {
	ids = slices.Clone(ids)
	slices.SortFunc(ids, func(a, b models.Identity) int { return bytes.Compare(a[:], b[:]) })
	ids = slices.Compact(ids)

	entries := make([]*entry, len(ids))
	l.mapMu.Lock()
	for i, id := range ids {
		e, exists := l.byID[id]
		if !exists {
			e = &entry{}
			l.byID[id] = e
		}
		e.refs++
		entries[i] = e
	}
	l.mapMu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		l.mapMu.Lock()
		for i, id := range ids {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(l.byID, id)
			}
		}
		l.mapMu.Unlock()
	}
}

// size is the number of tracked accounts.
func (l *Locks) size() int {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	return len(l.byID)
}
