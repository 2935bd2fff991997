package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nexusduel/duel-server-go/internal/config"
	"github.com/nexusduel/duel-server-go/internal/game"
	"github.com/nexusduel/duel-server-go/internal/repository"
)

var testCfg = config.MonitorConfig{
	Interval:         10 * time.Second,
	StaleThreshold:   15 * time.Second,
	ForfeitThreshold: 30 * time.Second,
}

type fixture struct {
	store *repository.MemoryStore
	queue *repository.MemoryQueue
	mon   *Monitor
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: repository.NewMemoryStore(),
		queue: repository.NewMemoryQueue(),
		now:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	f.mon = New(f.store, f.queue, testCfg, zap.NewNop())
	f.mon.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addMatch(t *testing.T, id string, wagered bool) {
	t.Helper()
	deck := make([]game.Card, 8)
	for i := range deck {
		deck[i] = game.Card{Name: "Filler", ATK: 1000, DEF: 1000}
	}
	m := game.NewMatch("lobby-"+id, "alice", "bob", deck, deck, game.MatchOptions{Seed: 1, Wagered: wagered})
	m.ID = id
	m.CreatedAt = f.now
	m.DrainEvents()
	require.NoError(t, f.store.Create(context.Background(), m))
}

func (f *fixture) heartbeat(t *testing.T, matchID, playerID string, at time.Time) {
	t.Helper()
	require.NoError(t, f.store.WithMatch(context.Background(), matchID, func(m *game.Match) error {
		m.RecordHeartbeat(playerID, at)
		m.DrainEvents()
		return nil
	}))
}

func (f *fixture) match(t *testing.T, matchID string) *game.Match {
	t.Helper()
	m, err := f.store.Get(context.Background(), matchID)
	require.NoError(t, err)
	return m
}

func TestNoTimerWhileBothResponsive(t *testing.T) {
	f := newFixture(t)
	f.addMatch(t, "m1", true)
	f.heartbeat(t, "m1", "alice", f.now)
	f.heartbeat(t, "m1", "bob", f.now)

	f.now = f.now.Add(10 * time.Second)
	f.mon.CheckDisconnects(context.Background())

	assert.Nil(t, f.match(t, "m1").Disconnect.Timer)
	assert.Equal(t, 0, f.queue.Pending())
}

func TestTimerStartsForStaleSide(t *testing.T) {
	f := newFixture(t)
	f.addMatch(t, "m1", true)
	f.heartbeat(t, "m1", "alice", f.now)
	f.heartbeat(t, "m1", "bob", f.now)

	// Bob keeps heartbeating, alice goes silent past the threshold.
	f.now = f.now.Add(20 * time.Second)
	f.heartbeat(t, "m1", "bob", f.now)
	f.mon.CheckDisconnects(context.Background())

	timer := f.match(t, "m1").Disconnect.Timer
	require.NotNil(t, timer)
	assert.Equal(t, "alice", timer.TargetPlayerID)
	assert.Equal(t, 0, f.queue.Pending())
}

func TestHeartbeatRecoveryClearsTimer(t *testing.T) {
	f := newFixture(t)
	f.addMatch(t, "m1", true)
	f.heartbeat(t, "m1", "bob", f.now)

	f.now = f.now.Add(20 * time.Second)
	f.heartbeat(t, "m1", "bob", f.now)
	f.mon.CheckDisconnects(context.Background())
	require.NotNil(t, f.match(t, "m1").Disconnect.Timer)

	// Alice returns before the grace period ends.
	f.heartbeat(t, "m1", "alice", f.now)
	assert.Nil(t, f.match(t, "m1").Disconnect.Timer)

	f.mon.CheckDisconnects(context.Background())
	assert.Nil(t, f.match(t, "m1").Disconnect.Timer)
	assert.Equal(t, 0, f.queue.Pending())
}

func TestTimerRetargetsWhenOtherSideGoesStale(t *testing.T) {
	f := newFixture(t)
	f.addMatch(t, "m1", true)
	f.heartbeat(t, "m1", "bob", f.now)

	f.now = f.now.Add(20 * time.Second)
	f.heartbeat(t, "m1", "bob", f.now)
	f.mon.CheckDisconnects(context.Background())
	require.Equal(t, "alice", f.match(t, "m1").Disconnect.Timer.TargetPlayerID)

	// Alice comes back, bob vanishes. The single timer retargets
	// instead of a second one starting.
	f.now = f.now.Add(20 * time.Second)
	f.heartbeat(t, "m1", "alice", f.now)
	f.mon.CheckDisconnects(context.Background())

	timer := f.match(t, "m1").Disconnect.Timer
	require.NotNil(t, timer)
	assert.Equal(t, "bob", timer.TargetPlayerID)
	// Retargeting restarts the grace period.
	assert.Equal(t, f.now, timer.StartedAt.UTC())
}

func TestExpiredTimerSchedulesForfeitOnce(t *testing.T) {
	f := newFixture(t)
	f.addMatch(t, "m1", true)
	f.heartbeat(t, "m1", "alice", f.now)
	f.heartbeat(t, "m1", "bob", f.now)

	f.now = f.now.Add(20 * time.Second)
	f.heartbeat(t, "m1", "bob", f.now)
	f.mon.CheckDisconnects(context.Background())
	require.NotNil(t, f.match(t, "m1").Disconnect.Timer)

	f.now = f.now.Add(30 * time.Second)
	f.heartbeat(t, "m1", "bob", f.now)
	f.mon.CheckDisconnects(context.Background())
	require.Equal(t, 1, f.queue.Pending())

	pending, err := f.queue.PollPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].PlayerID)
	assert.Equal(t, "m1", pending[0].MatchID)
	assert.Equal(t, "lobby-m1", pending[0].LobbyID)

	// Another tick before the worker runs does not duplicate the
	// intent.
	f.now = f.now.Add(10 * time.Second)
	f.heartbeat(t, "m1", "bob", f.now)
	f.mon.CheckDisconnects(context.Background())
	assert.Equal(t, 1, f.queue.Pending())
}

func TestUnwageredMatchesAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.addMatch(t, "m1", false)

	f.now = f.now.Add(time.Hour)
	f.mon.CheckDisconnects(context.Background())

	assert.Nil(t, f.match(t, "m1").Disconnect.Timer)
	assert.Equal(t, 0, f.queue.Pending())
}

func TestBothSidesStaleForfeitsExactlyOne(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	earlier := base.Add(-time.Minute)

	cases := []struct {
		name     string
		host     *time.Time
		opponent *time.Time
		want     string
	}{
		{"host heartbeat strictly older", &earlier, &base, "alice"},
		{"opponent heartbeat strictly older", &base, &earlier, "bob"},
		{"host never sent", nil, &base, "alice"},
		{"opponent never sent", &base, nil, "bob"},
		{"neither ever sent", nil, nil, "alice"},
		{"exactly equal", &base, &base, "alice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.addMatch(t, "m1", true)
			if tc.host != nil {
				f.heartbeat(t, "m1", "alice", *tc.host)
			}
			if tc.opponent != nil {
				f.heartbeat(t, "m1", "bob", *tc.opponent)
			}

			f.now = base.Add(20 * time.Second)
			f.mon.CheckDisconnects(context.Background())

			timer := f.match(t, "m1").Disconnect.Timer
			require.NotNil(t, timer)
			assert.Equal(t, tc.want, timer.TargetPlayerID)

			// The grace period runs out with both still silent.
			f.now = f.now.Add(30 * time.Second)
			f.mon.CheckDisconnects(context.Background())
			pending, err := f.queue.PollPending(context.Background(), 10)
			require.NoError(t, err)
			require.Len(t, pending, 1, "exactly one side forfeits")
			assert.Equal(t, tc.want, pending[0].PlayerID)
		})
	}
}

func TestFinishedMatchIsLeftAlone(t *testing.T) {
	f := newFixture(t)
	f.addMatch(t, "m1", true)
	require.NoError(t, f.store.WithMatch(context.Background(), "m1", func(m *game.Match) error {
		m.Forfeit("bob")
		m.DrainEvents()
		return nil
	}))

	f.now = f.now.Add(time.Hour)
	f.mon.CheckDisconnects(context.Background())
	assert.Equal(t, 0, f.queue.Pending())
}

func TestTimerEventsAreLogged(t *testing.T) {
	f := newFixture(t)
	f.addMatch(t, "m1", true)
	f.heartbeat(t, "m1", "bob", f.now)

	f.now = f.now.Add(20 * time.Second)
	f.heartbeat(t, "m1", "bob", f.now)
	f.mon.CheckDisconnects(context.Background())

	events, err := f.store.EventsFor(context.Background(), "m1")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "disconnect_timer_started", string(events[len(events)-1].Type))
}
