package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Intent kinds.
const (
	KindForfeitMatch = "forfeit_match"
)

// Intent is a durable side effect recorded in the same transaction as
// the state change that decided it. The worker delivers intents
// at-least-once: a handler failure leaves the intent pending for the
// next poll, so handlers must be idempotent. Forfeiting a finished
// match is a no-op, which makes the forfeit handler naturally so.
type Intent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	MatchID   string    `json:"matchId"`
	LobbyID   string    `json:"lobbyId"`
	PlayerID  string    `json:"playerId"`
	CreatedAt time.Time `json:"createdAt"`
	Attempts  int       `json:"attempts"`
}

// NewForfeitIntent records that playerID must forfeit the match.
func NewForfeitIntent(matchID, lobbyID, playerID string) Intent {
	return Intent{
		ID:        uuid.NewString(),
		Kind:      KindForfeitMatch,
		MatchID:   matchID,
		LobbyID:   lobbyID,
		PlayerID:  playerID,
		CreatedAt: time.Now(),
	}
}

// Queue is the durable intent store the worker drains. The repository
// package provides the postgres implementation.
type Queue interface {
	Enqueue(ctx context.Context, intent Intent) error
	PollPending(ctx context.Context, limit int) ([]Intent, error)
	MarkDone(ctx context.Context, intentID string) error
}

// ForfeitHandler applies a forfeit decided by the disconnect monitor.
type ForfeitHandler func(ctx context.Context, matchID, playerID string) error

// Worker polls the queue and dispatches pending intents.
type Worker struct {
	queue    Queue
	forfeit  ForfeitHandler
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

// NewWorker creates an outbox worker polling at the given interval.
func NewWorker(queue Queue, forfeit ForfeitHandler, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{
		queue:    queue,
		forfeit:  forfeit,
		interval: interval,
		batch:    50,
		logger:   logger,
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain processes one batch of pending intents. It returns the number
// of intents completed; failed intents stay pending.
func (w *Worker) Drain(ctx context.Context) int {
	intents, err := w.queue.PollPending(ctx, w.batch)
	if err != nil {
		w.logger.Error("failed to poll outbox", zap.Error(err))
		return 0
	}

	done := 0
	for _, intent := range intents {
		if err := w.dispatch(ctx, intent); err != nil {
			w.logger.Warn("outbox intent failed, will retry",
				zap.String("intent_id", intent.ID),
				zap.String("kind", intent.Kind),
				zap.Int("attempts", intent.Attempts),
				zap.Error(err),
			)
			continue
		}
		if err := w.queue.MarkDone(ctx, intent.ID); err != nil {
			// The side effect landed but the intent stays pending; the
			// retry relies on handler idempotency.
			w.logger.Warn("failed to mark outbox intent done",
				zap.String("intent_id", intent.ID),
				zap.Error(err),
			)
			continue
		}
		done++
	}
	return done
}

func (w *Worker) dispatch(ctx context.Context, intent Intent) error {
	switch intent.Kind {
	case KindForfeitMatch:
		return w.forfeit(ctx, intent.MatchID, intent.PlayerID)
	default:
		w.logger.Error("unknown outbox intent kind, dropping",
			zap.String("intent_id", intent.ID),
			zap.String("kind", intent.Kind),
		)
		return nil
	}
}
