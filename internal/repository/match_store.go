package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/nexusduel/duel-server-go/internal/game"
	"github.com/nexusduel/duel-server-go/internal/game/rules"
)

// errVersionConflict signals a lost optimistic-concurrency race; the
// read-modify-write loop retries on it.
var errVersionConflict = errors.New("match version conflict")

// withMatchRetries bounds the optimistic retry loop. Conflicts are
// rare (two transports racing on the same match), so a small bound is
// plenty before surfacing the conflict to the caller.
const withMatchRetries = 5

// MatchStore persists match documents as JSONB with optimistic
// concurrency. It implements game.Store and monitor.Store.
type MatchStore struct {
	db     *DB
	logger *zap.Logger
}

// NewMatchStore creates the postgres-backed match store.
func NewMatchStore(db *DB, logger *zap.Logger) *MatchStore {
	return &MatchStore{db: db, logger: logger}
}

// Create inserts a new match document.
func (s *MatchStore) Create(ctx context.Context, m *game.Match) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", m.ID, err)
	}
	_, err = s.db.pool.Exec(ctx,
		`INSERT INTO matches (id, lobby_id, status, wagered, version, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 1, $5, now(), now())`,
		m.ID, m.LobbyID, string(m.Status), m.Wagered, doc,
	)
	if err != nil {
		return fmt.Errorf("insert match %s: %w", m.ID, err)
	}
	return nil
}

// Get loads one match document.
func (s *MatchStore) Get(ctx context.Context, matchID string) (*game.Match, error) {
	m, _, err := s.get(ctx, matchID)
	return m, err
}

func (s *MatchStore) get(ctx context.Context, matchID string) (*game.Match, int64, error) {
	var (
		doc     []byte
		version int64
	)
	err := s.db.pool.QueryRow(ctx,
		`SELECT doc, version FROM matches WHERE id = $1`, matchID,
	).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, game.ErrMatchNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("select match %s: %w", matchID, err)
	}

	var m game.Match
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, 0, fmt.Errorf("unmarshal match %s: %w", matchID, err)
	}
	return &m, version, nil
}

// ByLobby returns the match created for a lobby, newest first.
func (s *MatchStore) ByLobby(ctx context.Context, lobbyID string) (*game.Match, error) {
	var doc []byte
	err := s.db.pool.QueryRow(ctx,
		`SELECT doc FROM matches WHERE lobby_id = $1 ORDER BY created_at DESC LIMIT 1`, lobbyID,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select match by lobby %s: %w", lobbyID, err)
	}

	var m game.Match
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("unmarshal match for lobby %s: %w", lobbyID, err)
	}
	return &m, nil
}

// ListActiveWagered returns every active wagered match. The disconnect
// monitor scans these each tick.
func (s *MatchStore) ListActiveWagered(ctx context.Context) ([]*game.Match, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT doc FROM matches WHERE status = $1 AND wagered = TRUE`,
		string(game.StatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("select active wagered matches: %w", err)
	}
	defer rows.Close()

	var out []*game.Match
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan match doc: %w", err)
		}
		var m game.Match
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, fmt.Errorf("unmarshal match doc: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// WithMatch runs fn against the current document and writes the result
// back, guarded by the version column. A concurrent writer bumps the
// version and the write is retried from a fresh read; errors from fn
// abort without retrying.
func (s *MatchStore) WithMatch(ctx context.Context, matchID string, fn func(*game.Match) error) error {
	for attempt := 0; attempt < withMatchRetries; attempt++ {
		m, version, err := s.get(ctx, matchID)
		if err != nil {
			return err
		}

		if err := fn(m); err != nil {
			return err
		}

		err = s.update(ctx, m, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errVersionConflict) {
			return err
		}
		s.logger.Debug("match version conflict, retrying",
			zap.String("match_id", matchID),
			zap.Int("attempt", attempt+1),
		)
	}
	return fmt.Errorf("match %s: %w after %d attempts", matchID, errVersionConflict, withMatchRetries)
}

func (s *MatchStore) update(ctx context.Context, m *game.Match, version int64) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", m.ID, err)
	}
	tag, err := s.db.pool.Exec(ctx,
		`UPDATE matches
		 SET doc = $1, status = $2, version = version + 1, updated_at = now()
		 WHERE id = $3 AND version = $4`,
		doc, string(m.Status), m.ID, version,
	)
	if err != nil {
		return fmt.Errorf("update match %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return errVersionConflict
	}
	return nil
}

// AppendEvents writes spectator log entries. Append-only; failures are
// tolerated by the caller.
func (s *MatchStore) AppendEvents(ctx context.Context, events []rules.Event) error {
	for _, ev := range events {
		var metadata []byte
		if len(ev.Metadata) > 0 {
			m, err := json.Marshal(ev.Metadata)
			if err != nil {
				return fmt.Errorf("marshal event metadata: %w", err)
			}
			metadata = m
		}
		_, err := s.db.pool.Exec(ctx,
			`INSERT INTO match_events (id, match_id, turn_number, event_type, player_id, description, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO NOTHING`,
			ev.ID, ev.MatchID, ev.TurnNumber, string(ev.Type), ev.PlayerID, ev.Description, metadata, ev.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert match event: %w", err)
		}
	}
	return nil
}

// EventsFor returns the spectator log for a match in order.
func (s *MatchStore) EventsFor(ctx context.Context, matchID string) ([]rules.Event, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT id, match_id, turn_number, event_type, player_id, description, metadata, created_at
		 FROM match_events WHERE match_id = $1 ORDER BY created_at, id`, matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("select match events: %w", err)
	}
	defer rows.Close()

	var out []rules.Event
	for rows.Next() {
		var (
			ev        rules.Event
			eventType string
			metadata  []byte
		)
		if err := rows.Scan(&ev.ID, &ev.MatchID, &ev.TurnNumber, &eventType, &ev.PlayerID, &ev.Description, &metadata, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan match event: %w", err)
		}
		ev.Type = rules.EventType(eventType)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal event metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
