package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nexusduel/duel-server-go/internal/game"
	"github.com/nexusduel/duel-server-go/internal/game/effects"
	"github.com/nexusduel/duel-server-go/internal/game/rules"
	"github.com/nexusduel/duel-server-go/internal/outbox"
	"github.com/nexusduel/duel-server-go/internal/repository"
)

func fillerDeck(n int) []game.Card {
	deck := make([]game.Card, n)
	for i := range deck {
		deck[i] = game.Card{Name: "Filler", ATK: 1000, DEF: 1000}
	}
	return deck
}

func setup(t *testing.T) (*game.Engine, *repository.MemoryStore, string) {
	t.Helper()
	store := repository.NewMemoryStore()
	engine := game.NewEngine(store, rules.NewEventBus(), zap.NewNop())

	m, err := engine.CreateMatch(context.Background(), "lobby-1", "alice", "bob", fillerDeck(20), fillerDeck(20), game.MatchOptions{Seed: 7})
	require.NoError(t, err)
	return engine, store, m.ID
}

// advanceTo moves the turn player through phases until the named one.
func advanceTo(t *testing.T, engine *game.Engine, matchID, playerID string, phase rules.Phase) {
	t.Helper()
	for i := 0; i < 8; i++ {
		next, _, err := engine.AdvancePhase(context.Background(), matchID, playerID)
		require.NoError(t, err)
		if next == phase {
			return
		}
	}
	t.Fatalf("never reached %s phase", phase)
}

func TestFullTurnAgainstStore(t *testing.T) {
	ctx := context.Background()
	engine, store, matchID := setup(t)

	// Give alice a monster with a burn effect and note its id.
	var attackerID string
	require.NoError(t, store.WithMatch(ctx, matchID, func(m *game.Match) error {
		card := game.Card{
			InstanceID: "knight-1",
			Name:       "Flame Knight",
			ATK:        1800,
			DEF:        1200,
			Ability: &effects.Ability{
				Effects: []effects.Effect{{Type: effects.TypeDamage, Value: 500, OPT: true}},
			},
		}
		m.Host.Hand = append(m.Host.Hand, card)
		attackerID = card.InstanceID
		return nil
	}))

	advanceTo(t, engine, matchID, "alice", rules.PhaseMain)
	require.NoError(t, engine.SummonMonster(ctx, matchID, "alice", attackerID, game.PositionAttack))

	// Ignition effect burns the opponent; the once-per-turn lock
	// holds for a second activation, both verified through the store.
	res, err := engine.ActivateEffect(ctx, matchID, "alice", attackerID, 0, nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = engine.ActivateEffect(ctx, matchID, "alice", attackerID, 0, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "once per turn")

	m, err := store.Get(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 7500, m.Opponent.LifePoints)

	// Battle: direct attack through a response window.
	advanceTo(t, engine, matchID, "alice", rules.PhaseBattle)
	require.NoError(t, engine.DeclareAttack(ctx, matchID, "alice", attackerID, ""))
	_, err = engine.PassPriority(ctx, matchID, "alice")
	require.NoError(t, err)
	_, err = engine.PassPriority(ctx, matchID, "bob")
	require.NoError(t, err)

	msg, replay, err := engine.ResolveBattle(ctx, matchID, "alice")
	require.NoError(t, err)
	assert.False(t, replay)
	assert.Contains(t, msg, "attacked directly")

	m, err = store.Get(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 7500-1800, m.Opponent.LifePoints)

	// Wrap the turn; bob becomes the turn player and draws.
	advanceTo(t, engine, matchID, "alice", rules.PhaseDraw)
	m, err = store.Get(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Turn.TurnNumber)
	assert.Equal(t, "bob", m.Turn.CurrentPlayerID)
	assert.Len(t, m.Opponent.Hand, game.DefaultOpeningHandSize+1)

	// With no response window open alice cannot act on bob's turn.
	_, err = engine.ActivateEffect(ctx, matchID, "alice", attackerID, 0, nil)
	assert.ErrorIs(t, err, game.ErrNotYourTurn)

	// Wrap again; the once-per-turn lock clears when alice's own
	// turn begins and the burn lands a second time.
	advanceTo(t, engine, matchID, "bob", rules.PhaseDraw)
	res, err = engine.ActivateEffect(ctx, matchID, "alice", attackerID, 0, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	m, err = store.Get(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Turn.TurnNumber)
	assert.Equal(t, 7500-1800-500, m.Opponent.LifePoints)

	// Events landed in the store for every step.
	events, err := store.EventsFor(ctx, matchID)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestForfeitIntentPipeline(t *testing.T) {
	ctx := context.Background()
	engine, store, matchID := setup(t)

	// Mark the match wagered so the disconnect path applies to it.
	require.NoError(t, store.WithMatch(ctx, matchID, func(m *game.Match) error {
		m.Wagered = true
		return nil
	}))

	queue := repository.NewMemoryQueue()
	worker := outbox.NewWorker(queue, engine.Forfeit, 0, zap.NewNop())

	// The monitor decided alice must forfeit; the intent is durable
	// and the worker delivers it to the engine.
	require.NoError(t, queue.Enqueue(ctx, outbox.NewForfeitIntent(matchID, "lobby-1", "alice")))
	assert.Equal(t, 1, worker.Drain(ctx))

	m, err := store.Get(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, game.StatusFinished, m.Status)
	assert.Equal(t, "bob", m.WinnerID)
	assert.Equal(t, "forfeit", m.FinishReason)

	// Redelivery of the same decision is harmless.
	require.NoError(t, queue.Enqueue(ctx, outbox.NewForfeitIntent(matchID, "lobby-1", "alice")))
	assert.Equal(t, 1, worker.Drain(ctx))
	m, err = store.Get(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, "bob", m.WinnerID)
}
