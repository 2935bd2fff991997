package rules

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType indicates the category of a match event. Events are
// append-only records consumed by spectator and replay features; the
// engine never branches on whether an event was delivered.
type EventType string

const (
	// Turn events
	EventPhaseChanged EventType = "phase_changed"
	EventTurnEnded    EventType = "turn_ended"

	// Card and life events
	EventCardDrawn       EventType = "card_drawn"
	EventCardDiscarded   EventType = "card_discarded"
	EventDamageDealt     EventType = "damage_dealt"
	EventLifeGained      EventType = "life_gained"
	EventLifePaid        EventType = "life_paid"
	EventCardDestroyed   EventType = "card_destroyed"
	EventCardBanished    EventType = "card_banished"
	EventCardBounced     EventType = "card_bounced"
	EventTokenCreated    EventType = "token_created"
	EventStatsModified   EventType = "stats_modified"
	EventPositionChanged EventType = "position_changed"
	EventNormalSummon    EventType = "normal_summon"
	EventCardSet         EventType = "card_set"
	EventEffectActivated EventType = "effect_activated"

	// Chain events
	EventChainLinkAdded   EventType = "chain_link_added"
	EventChainLinkNegated EventType = "chain_link_negated"
	EventChainResolved    EventType = "chain_resolved"

	// Battle events
	EventAttackDeclared EventType = "attack_declared"
	EventBattleReplay   EventType = "battle_replay"
	EventBattleDamage   EventType = "battle_damage"

	// Disconnect/lifecycle events
	EventDisconnectTimerStarted    EventType = "disconnect_timer_started"
	EventDisconnectTimerRetargeted EventType = "disconnect_timer_retargeted"
	EventDisconnectTimerCleared    EventType = "disconnect_timer_cleared"
	EventForfeitScheduled          EventType = "forfeit_scheduled"
	EventMatchForfeited            EventType = "match_forfeited"
	EventMatchEnded                EventType = "match_ended"
)

// Event represents one append-only match log record.
type Event struct {
	ID          string            `json:"id"`
	MatchID     string            `json:"matchId"`
	TurnNumber  int               `json:"turnNumber"`
	Type        EventType         `json:"eventType"`
	PlayerID    string            `json:"playerId,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// NewEvent creates an event with id and timestamp populated.
func NewEvent(eventType EventType, matchID string, turn int, playerID, description string) Event {
	return Event{
		ID:          uuid.NewString(),
		MatchID:     matchID,
		TurnNumber:  turn,
		Type:        eventType,
		PlayerID:    playerID,
		Description: description,
		Timestamp:   time.Now(),
	}
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with
// type filtering. Listener failures never propagate back to the
// publishing transaction.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
// A panicking listener is recovered so event delivery can never fail
// the transition that produced the event.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		safeDeliver(listener, event)
	}
	if typed, ok := bus.typedListeners[event.Type]; ok {
		for _, listener := range typed {
			safeDeliver(listener.Callback, event)
		}
	}
}

// PublishBatch publishes multiple events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

func safeDeliver(fn func(Event), event Event) {
	defer func() {
		_ = recover()
	}()
	fn(event)
}
