package clientsync_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mise/internal/clientsync"
)

func TestParseOrdering(t *testing.T) {
	got, err := clientsync.ParseOrdering("")
	require.NoError(t, err)
	assert.Equal(t, clientsync.OrderingCancel, got)

	for _, o := range clientsync.Orderings {
		got, err := clientsync.ParseOrdering(string(o))
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}

	_, err = clientsync.ParseOrdering("latest")
	assert.Error(t, err)
}

func TestSequencer_CancelSupersedesInFlight(t *testing.T) {
	seq := clientsync.NewSequencer(clientsync.OrderingCancel)

	oldCtx, oldTicket := seq.Begin(context.Background(), clientsync.KeyRecipes)
	newCtx, newTicket := seq.Begin(context.Background(), clientsync.KeyRecipes)
	defer seq.Done(newTicket)

	assert.ErrorIs(t, oldCtx.Err(), context.Canceled)
	assert.True(t, oldTicket.Superseded())
	assert.NoError(t, newCtx.Err())

	assert.True(t, seq.Apply(newTicket, func() {}))
	assert.False(t, seq.Apply(oldTicket, func() { t.Fatal("stale render") }))
	seq.Done(oldTicket)
}

func TestSequencer_DropStaleKeepsRequestsAlive(t *testing.T) {
	seq := clientsync.NewSequencer(clientsync.OrderingDropStale)

	oldCtx, oldTicket := seq.Begin(context.Background(), clientsync.KeyRecipes)
	_, newTicket := seq.Begin(context.Background(), clientsync.KeyRecipes)
	assert.NoError(t, oldCtx.Err())

	// the older response arriving first still renders
	rendered := 0
	assert.True(t, seq.Apply(oldTicket, func() { rendered++ }))
	assert.True(t, seq.Apply(newTicket, func() { rendered++ }))
	assert.Equal(t, 2, rendered)

	seq.Done(oldTicket)
	seq.Done(newTicket)
	assert.ErrorIs(t, oldCtx.Err(), context.Canceled)
}

func TestSequencer_KeysAreIndependent(t *testing.T) {
	seq := clientsync.NewSequencer(clientsync.OrderingCancel)

	ctxA, a := seq.Begin(context.Background(), clientsync.CommentsKey("1"))
	_, b := seq.Begin(context.Background(), clientsync.CommentsKey("2"))

	assert.NoError(t, ctxA.Err())
	assert.True(t, seq.Apply(b, func() {}))
	assert.True(t, seq.Apply(a, func() {}))
	seq.Done(a)
	seq.Done(b)
}
