package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishDeposit(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "custody.", zaptest.NewLogger(t))

	var vault, depositor models.Identity
	vault[0], depositor[0] = 1, 2
	ev := events.DepositEvent{EventID: uuid.New(), Amount: 50, Depositor: depositor, Vault: vault}

	require.NoError(t, p.Publish(context.Background(), events.TopicDeposit, ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "custody.vault_deposit", w.msgs[0].Topic)
	assert.Equal(t, vault.String(), string(w.msgs[0].Key))

	var decoded events.DepositEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, ev.EventID, decoded.EventID)
	assert.Equal(t, uint64(50), decoded.Amount)
	assert.Equal(t, depositor, decoded.Depositor)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishWriteFailure(t *testing.T) {
	boom := errors.New("leader not available")
	p := newPublisher(&fakeWriter{err: boom}, "", nil)

	err := p.Publish(context.Background(), events.TopicWithdraw, events.WithdrawEvent{})
	assert.ErrorIs(t, err, boom)
}

func TestPublishUnencodable(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "", nil)

	err := p.Publish(context.Background(), "x", make(chan int))
	assert.Error(t, err)
	assert.Empty(t, w.msgs)
}
