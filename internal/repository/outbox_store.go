package repository

import (
	"context"
	"fmt"

	"github.com/nexusduel/duel-server-go/internal/outbox"
)

// OutboxStore is the postgres-backed intent queue. It implements
// outbox.Queue.
type OutboxStore struct {
	db *DB
}

// NewOutboxStore creates the postgres outbox queue.
func NewOutboxStore(db *DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Enqueue records an intent. Re-enqueueing the same id is a no-op, so
// a monitor tick that re-decides an already recorded forfeit does not
// duplicate it.
func (s *OutboxStore) Enqueue(ctx context.Context, intent outbox.Intent) error {
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO outbox (id, kind, match_id, lobby_id, player_id, attempts, done, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, FALSE, $6)
		 ON CONFLICT (id) DO NOTHING`,
		intent.ID, intent.Kind, intent.MatchID, intent.LobbyID, intent.PlayerID, intent.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox intent: %w", err)
	}
	return nil
}

// PollPending returns the oldest pending intents and bumps their
// attempt counters.
func (s *OutboxStore) PollPending(ctx context.Context, limit int) ([]outbox.Intent, error) {
	rows, err := s.db.pool.Query(ctx,
		`UPDATE outbox SET attempts = attempts + 1
		 WHERE id IN (
			SELECT id FROM outbox WHERE done = FALSE ORDER BY created_at LIMIT $1
		 )
		 RETURNING id, kind, match_id, lobby_id, player_id, attempts, created_at`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("poll outbox: %w", err)
	}
	defer rows.Close()

	var out []outbox.Intent
	for rows.Next() {
		var intent outbox.Intent
		if err := rows.Scan(&intent.ID, &intent.Kind, &intent.MatchID, &intent.LobbyID, &intent.PlayerID, &intent.Attempts, &intent.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox intent: %w", err)
		}
		out = append(out, intent)
	}
	return out, rows.Err()
}

// MarkDone completes an intent.
func (s *OutboxStore) MarkDone(ctx context.Context, intentID string) error {
	_, err := s.db.pool.Exec(ctx,
		`UPDATE outbox SET done = TRUE, done_at = now() WHERE id = $1`,
		intentID,
	)
	if err != nil {
		return fmt.Errorf("mark outbox intent done: %w", err)
	}
	return nil
}
