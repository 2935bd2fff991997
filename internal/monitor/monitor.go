package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nexusduel/duel-server-go/internal/config"
	"github.com/nexusduel/duel-server-go/internal/game"
	"github.com/nexusduel/duel-server-go/internal/game/rules"
	"github.com/nexusduel/duel-server-go/internal/outbox"
)

// Store is the persistence surface the monitor requires.
type Store interface {
	ListActiveWagered(ctx context.Context) ([]*game.Match, error)
	WithMatch(ctx context.Context, matchID string, fn func(*game.Match) error) error
	AppendEvents(ctx context.Context, events []rules.Event) error
}

// Monitor scans active wagered matches for missing heartbeats. A side
// whose heartbeat goes stale gets a grace-period timer; a timer that
// runs out produces a durable forfeit intent for the outbox worker.
// Unwagered matches are never forfeited on timeout.
type Monitor struct {
	store    Store
	queue    outbox.Queue
	interval time.Duration
	stale    time.Duration
	forfeit  time.Duration
	logger   *zap.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// New creates the disconnect monitor.
func New(store Store, queue outbox.Queue, cfg config.MonitorConfig, logger *zap.Logger) *Monitor {
	return &Monitor{
		store:    store,
		queue:    queue,
		interval: cfg.Interval,
		stale:    cfg.StaleThreshold,
		forfeit:  cfg.ForfeitThreshold,
		logger:   logger,
		now:      time.Now,
	}
}

// Run ticks until the context is cancelled.
func (mon *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()

	mon.logger.Info("disconnect monitor started",
		zap.Duration("interval", mon.interval),
		zap.Duration("stale_threshold", mon.stale),
		zap.Duration("forfeit_threshold", mon.forfeit),
	)
	for {
		select {
		case <-ctx.Done():
			mon.logger.Info("disconnect monitor stopped")
			return
		case <-ticker.C:
			mon.CheckDisconnects(ctx)
		}
	}
}

// CheckDisconnects runs one monitor pass over all active wagered
// matches.
func (mon *Monitor) CheckDisconnects(ctx context.Context) {
	matches, err := mon.store.ListActiveWagered(ctx)
	if err != nil {
		mon.logger.Error("failed to list active wagered matches", zap.Error(err))
		return
	}

	now := mon.now()
	for _, snapshot := range matches {
		matchID := snapshot.ID
		var (
			events    []rules.Event
			forfeiter string
		)
		err := mon.store.WithMatch(ctx, matchID, func(m *game.Match) error {
			forfeiter = mon.check(m, now)
			events = m.DrainEvents()
			return nil
		})
		if err != nil {
			mon.logger.Error("disconnect check failed",
				zap.String("match_id", matchID),
				zap.Error(err),
			)
			continue
		}
		if len(events) > 0 {
			if appendErr := mon.store.AppendEvents(ctx, events); appendErr != nil {
				mon.logger.Warn("failed to append monitor events",
					zap.String("match_id", matchID),
					zap.Error(appendErr),
				)
			}
		}
		if forfeiter != "" {
			mon.scheduleForfeit(ctx, snapshot, forfeiter)
		}
	}
}

// check applies the disconnect state machine to one match and returns
// the player to forfeit, if the grace period ran out.
func (mon *Monitor) check(m *game.Match, now time.Time) string {
	if !m.IsActive() {
		return ""
	}

	hostStale := mon.isStale(m.HeartbeatOf(m.HostID), m.CreatedAt, now)
	oppStale := mon.isStale(m.HeartbeatOf(m.OpponentID), m.CreatedAt, now)

	switch {
	case !hostStale && !oppStale:
		m.ClearDisconnectTimer("both sides responsive")
	case hostStale && !oppStale:
		m.StartDisconnectTimer(m.HostID, now)
	case !hostStale && oppStale:
		m.StartDisconnectTimer(m.OpponentID, now)
	default:
		// Both sides are gone. Exactly one side forfeits so the match
		// never ends drawn; the tiebreak picks whoever vanished first.
		m.StartDisconnectTimer(pickForfeiter(m), now)
	}

	timer := m.Disconnect.Timer
	if timer != nil && now.Sub(timer.StartedAt) >= mon.forfeit {
		return timer.TargetPlayerID
	}
	return ""
}

// isStale reports whether a heartbeat is older than the threshold. A
// side that never sent one is measured from match creation, so fresh
// matches get the same grace period.
func (mon *Monitor) isStale(last *time.Time, createdAt, now time.Time) bool {
	ref := createdAt
	if last != nil {
		ref = *last
	}
	return now.Sub(ref) > mon.stale
}

// pickForfeiter chooses which side forfeits when both heartbeats are
// stale. The side whose heartbeat is strictly older forfeits; a side
// that never sent one counts as oldest. Exact ties fall to the host.
// Any deterministic rule works here, what matters is that exactly one
// side loses.
func pickForfeiter(m *game.Match) string {
	host := m.HeartbeatOf(m.HostID)
	opp := m.HeartbeatOf(m.OpponentID)

	switch {
	case host == nil:
		return m.HostID
	case opp == nil:
		return m.OpponentID
	case host.Before(*opp):
		return m.HostID
	case opp.Before(*host):
		return m.OpponentID
	default:
		return m.HostID
	}
}

// scheduleForfeit records the forfeit durably. The intent id is
// derived from the match, so repeated ticks before the worker runs
// collapse into one intent.
func (mon *Monitor) scheduleForfeit(ctx context.Context, m *game.Match, playerID string) {
	intent := outbox.Intent{
		ID:        m.ID + ":disconnect-forfeit",
		Kind:      outbox.KindForfeitMatch,
		MatchID:   m.ID,
		LobbyID:   m.LobbyID,
		PlayerID:  playerID,
		CreatedAt: mon.now(),
	}
	if err := mon.queue.Enqueue(ctx, intent); err != nil {
		mon.logger.Error("failed to enqueue forfeit intent",
			zap.String("match_id", m.ID),
			zap.String("player_id", playerID),
			zap.Error(err),
		)
		return
	}
	mon.logger.Info("disconnect forfeit scheduled",
		zap.String("match_id", m.ID),
		zap.String("lobby_id", m.LobbyID),
		zap.String("player_id", playerID),
	)
}
