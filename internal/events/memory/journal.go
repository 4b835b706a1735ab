package memory

import (
	"context"
	"sync"

	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
)

// Record is one published event.
type Record struct {
	Topic string
	Event any
}

// Journal is an append-only, in-process publisher. Records are never
// modified or removed once written.
type Journal struct {
	mu      sync.Mutex
	records []Record
	fail    error
}

func NewJournal() *Journal {
	return &Journal{records: make([]Record, 0)}
}

func (j *Journal) Publish(ctx context.Context, topic string, event any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.fail != nil {
		return j.fail
	}
	j.records = append(j.records, Record{Topic: topic, Event: event})
	return nil
}

// FailWith makes every following Publish return err. Pass nil to recover.
func (j *Journal) FailWith(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.fail = err
}

// Records returns a copy of everything published so far.
func (j *Journal) Records() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()

	copied := make([]Record, len(j.records))
	copy(copied, j.records)
	return copied
}

// Compile-time check: ensure Journal implements EventPublisher interface
var _ interfaces.EventPublisher = (*Journal)(nil)
