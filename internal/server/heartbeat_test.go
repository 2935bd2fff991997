package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nexusduel/duel-server-go/internal/game"
	"github.com/nexusduel/duel-server-go/internal/game/rules"
	"github.com/nexusduel/duel-server-go/internal/repository"
)

func dialHeartbeat(t *testing.T) (*game.Engine, *repository.MemoryStore, *websocket.Conn) {
	t.Helper()

	store := repository.NewMemoryStore()
	engine := game.NewEngine(store, rules.NewEventBus(), zap.NewNop())
	srv := httptest.NewServer(NewHeartbeatServer(engine, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/heartbeat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return engine, store, conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame any) heartbeatAck {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame))
	var ack heartbeatAck
	require.NoError(t, conn.ReadJSON(&ack))
	return ack
}

func TestHeartbeatEndpoint(t *testing.T) {
	ctx := context.Background()
	engine, store, conn := dialHeartbeat(t)

	deck := make([]game.Card, 8)
	for i := range deck {
		deck[i] = game.Card{Name: "Filler", ATK: 1000, DEF: 1000}
	}
	m, err := engine.CreateMatch(ctx, "lobby-1", "alice", "bob", deck, deck, game.MatchOptions{Seed: 1})
	require.NoError(t, err)

	ack := sendFrame(t, conn, HeartbeatFrame{MatchID: m.ID, PlayerID: "alice"})
	assert.True(t, ack.OK)

	got, err := store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.HeartbeatOf("alice"))
	assert.Nil(t, got.HeartbeatOf("bob"))
}

func TestHeartbeatRejectsBadFrames(t *testing.T) {
	_, _, conn := dialHeartbeat(t)

	ack := sendFrame(t, conn, HeartbeatFrame{MatchID: "", PlayerID: "alice"})
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "required")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var malformed heartbeatAck
	require.NoError(t, conn.ReadJSON(&malformed))
	assert.Contains(t, malformed.Error, "malformed")

	ack = sendFrame(t, conn, HeartbeatFrame{MatchID: "missing", PlayerID: "alice"})
	assert.False(t, ack.OK)
	assert.Equal(t, "match not found", ack.Error)
}

func TestHeartbeatOnFinishedMatch(t *testing.T) {
	ctx := context.Background()
	engine, _, conn := dialHeartbeat(t)

	deck := make([]game.Card, 8)
	for i := range deck {
		deck[i] = game.Card{Name: "Filler", ATK: 1000, DEF: 1000}
	}
	m, err := engine.CreateMatch(ctx, "lobby-1", "alice", "bob", deck, deck, game.MatchOptions{Seed: 1})
	require.NoError(t, err)
	require.NoError(t, engine.Forfeit(ctx, m.ID, "bob"))

	ack := sendFrame(t, conn, HeartbeatFrame{MatchID: m.ID, PlayerID: "alice"})
	assert.False(t, ack.OK)
	assert.Equal(t, "match finished", ack.Error)
}
