package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nexusduel/duel-server-go/internal/game"
	"github.com/nexusduel/duel-server-go/internal/game/rules"
	"github.com/nexusduel/duel-server-go/internal/outbox"
)

// MemoryStore is an in-memory match store with the same copy and
// serialization semantics as the postgres store: callers never share
// pointers with the stored document, and every write round-trips
// through JSON. Used by tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	matches map[string][]byte
	events  []rules.Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{matches: make(map[string][]byte)}
}

func (s *MemoryStore) Create(_ context.Context, m *game.Match) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", m.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[m.ID]; exists {
		return fmt.Errorf("match %s already exists", m.ID)
	}
	s.matches[m.ID] = doc
	return nil
}

func (s *MemoryStore) Get(_ context.Context, matchID string) (*game.Match, error) {
	s.mu.Lock()
	doc, ok := s.matches[matchID]
	s.mu.Unlock()
	if !ok {
		return nil, game.ErrMatchNotFound
	}
	var m game.Match
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("unmarshal match %s: %w", matchID, err)
	}
	return &m, nil
}

func (s *MemoryStore) ByLobby(ctx context.Context, lobbyID string) (*game.Match, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.matches))
	for id := range s.matches {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		m, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if m.LobbyID == lobbyID {
			return m, nil
		}
	}
	return nil, game.ErrMatchNotFound
}

func (s *MemoryStore) ListActiveWagered(ctx context.Context) ([]*game.Match, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.matches))
	for id := range s.matches {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var out []*game.Match
	for _, id := range ids {
		m, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if m.Status == game.StatusActive && m.Wagered {
			out = append(out, m)
		}
	}
	return out, nil
}

// WithMatch applies fn to a private copy of the document and writes it
// back. The lock is held across the whole read-modify-write, so unlike
// the postgres store there are no version conflicts to retry.
func (s *MemoryStore) WithMatch(_ context.Context, matchID string, fn func(*game.Match) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.matches[matchID]
	if !ok {
		return game.ErrMatchNotFound
	}
	var m game.Match
	if err := json.Unmarshal(doc, &m); err != nil {
		return fmt.Errorf("unmarshal match %s: %w", matchID, err)
	}
	if err := fn(&m); err != nil {
		return err
	}
	updated, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", matchID, err)
	}
	s.matches[matchID] = updated
	return nil
}

func (s *MemoryStore) AppendEvents(_ context.Context, events []rules.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// EventsFor returns the recorded events for a match.
func (s *MemoryStore) EventsFor(_ context.Context, matchID string) ([]rules.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []rules.Event
	for _, ev := range s.events {
		if ev.MatchID == matchID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// MemoryQueue is an in-memory outbox.Queue for tests and local
// development.
type MemoryQueue struct {
	mu      sync.Mutex
	intents []outbox.Intent
	done    map[string]bool
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{done: make(map[string]bool)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, intent outbox.Intent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.intents {
		if existing.ID == intent.ID {
			return nil
		}
	}
	q.intents = append(q.intents, intent)
	return nil
}

func (q *MemoryQueue) PollPending(_ context.Context, limit int) ([]outbox.Intent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []outbox.Intent
	for i := range q.intents {
		if q.done[q.intents[i].ID] {
			continue
		}
		q.intents[i].Attempts++
		out = append(out, q.intents[i])
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (q *MemoryQueue) MarkDone(_ context.Context, intentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done[intentID] = true
	return nil
}

// Pending returns the number of undelivered intents.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, intent := range q.intents {
		if !q.done[intent.ID] {
			n++
		}
	}
	return n
}
