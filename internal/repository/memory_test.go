package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusduel/duel-server-go/internal/game"
	"github.com/nexusduel/duel-server-go/internal/game/rules"
	"github.com/nexusduel/duel-server-go/internal/outbox"
)

func storedMatch(id string, wagered bool) *game.Match {
	deck := make([]game.Card, 8)
	for i := range deck {
		deck[i] = game.Card{Name: "Filler", ATK: 1000, DEF: 1000}
	}
	m := game.NewMatch("lobby-"+id, "alice", "bob", deck, deck, game.MatchOptions{Seed: 1, Wagered: wagered})
	m.ID = id
	m.DrainEvents()
	return m
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, storedMatch("m1", false)))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, game.StatusActive, got.Status)
	assert.Len(t, got.Host.Hand, game.DefaultOpeningHandSize)
	assert.Equal(t, rules.PhaseDraw, got.Turn.CurrentPhase())

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, game.ErrMatchNotFound)

	assert.Error(t, store.Create(ctx, storedMatch("m1", false)), "duplicate id")
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, storedMatch("m1", false)))

	// Mutating a loaded copy must not leak into the stored document.
	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	got.Host.LifePoints = 1

	again, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, game.DefaultStartingLP, again.Host.LifePoints)
}

func TestMemoryStoreWithMatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, storedMatch("m1", false)))

	require.NoError(t, store.WithMatch(ctx, "m1", func(m *game.Match) error {
		m.DealDamage("bob", 1500)
		m.DrainEvents()
		return nil
	}))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 6500, got.Opponent.LifePoints)

	// An error from fn discards the mutation.
	boom := errors.New("boom")
	err = store.WithMatch(ctx, "m1", func(m *game.Match) error {
		m.DealDamage("bob", 9999)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err = store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 6500, got.Opponent.LifePoints)

	assert.ErrorIs(t, store.WithMatch(ctx, "missing", func(*game.Match) error { return nil }), game.ErrMatchNotFound)
}

func TestMemoryStoreChainSurvivesSerialization(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, storedMatch("m1", false)))

	// A chain mid-response-window persists across load/store cycles.
	require.NoError(t, store.WithMatch(ctx, "m1", func(m *game.Match) error {
		m.Chain.Open = true
		return m.Chain.AddLink(rules.ChainLink{SourceCardID: "c1", ControllerID: "alice", SpellSpeed: 2})
	}))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.Chain.IsOpen())
	require.Len(t, got.Chain.Links, 1)
	assert.Equal(t, "c1", got.Chain.Links[0].SourceCardID)
	assert.Equal(t, 2, got.Chain.Links[0].SpellSpeed)
}

func TestMemoryStoreListActiveWagered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, storedMatch("m1", true)))
	require.NoError(t, store.Create(ctx, storedMatch("m2", false)))
	finished := storedMatch("m3", true)
	finished.Forfeit("alice")
	finished.DrainEvents()
	require.NoError(t, store.Create(ctx, finished))

	out, err := store.ListActiveWagered(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "m1", out[0].ID)
}

func TestMemoryStoreByLobby(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, storedMatch("m1", false)))

	got, err := store.ByLobby(ctx, "lobby-m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)

	_, err = store.ByLobby(ctx, "lobby-unknown")
	assert.ErrorIs(t, err, game.ErrMatchNotFound)
}

func TestMemoryStoreEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	events := []rules.Event{
		rules.NewEvent(rules.EventCardDrawn, "m1", 1, "alice", "Drew 1 card(s)"),
		rules.NewEvent(rules.EventCardDrawn, "m2", 1, "carol", "Drew 1 card(s)"),
	}
	require.NoError(t, store.AppendEvents(ctx, events))

	got, err := store.EventsFor(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].PlayerID)
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	queue := NewMemoryQueue()

	intent := outbox.NewForfeitIntent("m1", "l1", "alice")
	require.NoError(t, queue.Enqueue(ctx, intent))
	require.NoError(t, queue.Enqueue(ctx, intent), "same id enqueues once")
	assert.Equal(t, 1, queue.Pending())

	pending, err := queue.PollPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, outbox.KindForfeitMatch, pending[0].Kind)
	assert.Equal(t, 1, pending[0].Attempts)

	require.NoError(t, queue.MarkDone(ctx, intent.ID))
	assert.Equal(t, 0, queue.Pending())

	pending, err = queue.PollPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
