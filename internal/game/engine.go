package game

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexusduel/duel-server-go/internal/game/effects"
	"github.com/nexusduel/duel-server-go/internal/game/rules"
	"github.com/nexusduel/duel-server-go/internal/game/targeting"
)

// Store is the persistence surface the engine requires: atomic
// read-modify-write on one match document plus append-only event
// writes. The repository package provides the implementations.
type Store interface {
	Create(ctx context.Context, m *Match) error
	Get(ctx context.Context, matchID string) (*Match, error)
	WithMatch(ctx context.Context, matchID string, fn func(*Match) error) error
	AppendEvents(ctx context.Context, events []rules.Event) error
}

// Engine coordinates all player-initiated match mutations. Every
// operation is one serializable transaction against one match
// document; nothing suspends mid-transaction waiting for input.
// Response windows are state, and the next incoming action continues
// them.
type Engine struct {
	store  Store
	bus    *rules.EventBus
	logger *zap.Logger
}

// NewEngine creates the match engine.
func NewEngine(store Store, bus *rules.EventBus, logger *zap.Logger) *Engine {
	if bus == nil {
		bus = rules.NewEventBus()
	}
	return &Engine{store: store, bus: bus, logger: logger}
}

// Bus exposes the event bus for spectator subscriptions.
func (e *Engine) Bus() *rules.EventBus {
	return e.bus
}

// mutate runs fn against the match inside a store transaction, then
// flushes the accumulated events. Event persistence and fan-out are
// best-effort: a failing log write never fails the mutation.
func (e *Engine) mutate(ctx context.Context, matchID string, fn func(*Match) error) error {
	var events []rules.Event
	err := e.store.WithMatch(ctx, matchID, func(m *Match) error {
		if err := fn(m); err != nil {
			return err
		}
		events = m.DrainEvents()
		return nil
	})
	if err != nil {
		return err
	}
	if len(events) > 0 {
		if appendErr := e.store.AppendEvents(ctx, events); appendErr != nil {
			e.logger.Warn("failed to append match events",
				zap.String("match_id", matchID),
				zap.Error(appendErr),
			)
		}
		e.bus.PublishBatch(events)
	}
	return nil
}

func (e *Engine) executor(m *Match) *effects.Executor {
	return effects.NewExecutor(m, targeting.NewValidator(m), &m.Restrictions)
}

// CreateMatch builds and persists a new match.
func (e *Engine) CreateMatch(ctx context.Context, lobbyID, hostID, opponentID string, hostDeck, opponentDeck []Card, opts MatchOptions) (*Match, error) {
	m := NewMatch(lobbyID, hostID, opponentID, hostDeck, opponentDeck, opts)
	events := m.DrainEvents()
	if err := e.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	if len(events) > 0 {
		if appendErr := e.store.AppendEvents(ctx, events); appendErr != nil {
			e.logger.Warn("failed to append match events", zap.String("match_id", m.ID), zap.Error(appendErr))
		}
		e.bus.PublishBatch(events)
	}
	e.logger.Info("match created",
		zap.String("match_id", m.ID),
		zap.String("lobby_id", lobbyID),
		zap.Bool("wagered", m.Wagered),
	)
	return m, nil
}

// GetMatch loads a match document.
func (e *Engine) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	return e.store.Get(ctx, matchID)
}

// AdvancePhase moves the match to its next phase on behalf of the
// turn player. It is rejected while a chain is unresolved. A turn wrap
// flips the turn player, resets their per-turn state, and performs the
// draw-phase draw (deck-out ends the match).
func (e *Engine) AdvancePhase(ctx context.Context, matchID, playerID string) (rules.Phase, bool, error) {
	var (
		newPhase  rules.Phase
		turnEnded bool
	)
	err := e.mutate(ctx, matchID, func(m *Match) error {
		if !m.IsActive() {
			return ErrMatchFinished
		}
		if !m.Turn.IsTurnPlayer(playerID) {
			return ErrNotYourTurn
		}
		if m.Chain.IsOpen() {
			return ErrChainOpen
		}

		next := m.OpponentOf(playerID)
		newPhase, turnEnded = m.Turn.Advance(next)
		m.appendEvent(rules.EventPhaseChanged, playerID, fmt.Sprintf("Entered %s phase", newPhase), map[string]string{
			"phase": string(newPhase),
		})
		if turnEnded {
			m.appendEvent(rules.EventTurnEnded, next, fmt.Sprintf("Turn %d begins", m.Turn.TurnNumber), nil)
			m.resetForNewTurn()
			if newPhase == rules.PhaseDraw {
				m.BeginTurnDraw(m.Turn.CurrentPlayerID)
			}
		}
		return nil
	})
	return newPhase, turnEnded, err
}

// ActivateEffect activates a single card effect. With a response
// window open the activation joins the chain (subject to the spell
// speed gate); otherwise it executes immediately, which only the turn
// player may do. Rule violations come back in-band, only precondition
// failures are errors.
func (e *Engine) ActivateEffect(ctx context.Context, matchID, playerID, cardID string, effectIndex int, targetIDs []string) (effects.Result, error) {
	var result effects.Result
	err := e.mutate(ctx, matchID, func(m *Match) error {
		if !m.IsActive() {
			return ErrMatchFinished
		}
		card, _, found := m.findCard(cardID)
		if !found {
			return ErrCardNotFound
		}
		if card.Ability == nil || effectIndex < 0 || effectIndex >= len(card.Ability.Effects) {
			return fmt.Errorf("%w: %s has no effect %d", ErrCardNotFound, card.Name, effectIndex)
		}
		eff := card.Ability.Effects[effectIndex]

		if m.Chain.IsOpen() {
			speed := eff.SpellSpeed
			if speed < 1 {
				speed = 1
			}
			link := rules.ChainLink{
				SourceCardID: cardID,
				ControllerID: playerID,
				EffectIndex:  effectIndex,
				SpellSpeed:   speed,
				Targets:      targetIDs,
			}
			if eff.Type == effects.TypeNegate {
				// A negate response binds to a chain link, given as
				// the first target or defaulting to the top link.
				targetLinkID := ""
				if len(targetIDs) > 0 {
					targetLinkID = targetIDs[0]
				} else if top, ok := m.Chain.NextToResolve(); ok {
					targetLinkID = top.ID
				}
				if _, ok := m.Chain.Link(targetLinkID); !ok {
					result = effects.Result{Message: "No chain link to negate"}
					return nil
				}
				link.NegatesLinkID = targetLinkID
				link.Targets = nil
			}
			if err := m.Chain.AddLink(link); err != nil {
				result = effects.Result{Message: "Insufficient spell speed to respond"}
				return nil
			}
			m.appendEvent(rules.EventChainLinkAdded, playerID, fmt.Sprintf("%s was activated in response", card.Name), map[string]string{
				"cardId": cardID,
			})
			result = effects.Result{Success: true, Message: fmt.Sprintf("%s added to the chain", card.Name)}
			return nil
		}

		// Outside a response window only the turn player acts.
		if playerID != m.Turn.CurrentPlayerID {
			return ErrNotYourTurn
		}
		if eff.Type == effects.TypeNegate {
			result = effects.Result{Message: "No chain link to negate"}
			return nil
		}

		result = e.executor(m).Execute(eff, effectIndex, playerID, cardID, targetIDs)
		if result.Success {
			m.appendEvent(rules.EventEffectActivated, playerID, result.Message, map[string]string{
				"cardId": cardID,
			})
		}
		return nil
	})
	return result, err
}

// ActivateAbility executes the turn player's full multi-part ability
// outside of a chain.
func (e *Engine) ActivateAbility(ctx context.Context, matchID, playerID, cardID string, targetIDs []string) (effects.AbilityResult, error) {
	var result effects.AbilityResult
	err := e.mutate(ctx, matchID, func(m *Match) error {
		if !m.IsActive() {
			return ErrMatchFinished
		}
		if playerID != m.Turn.CurrentPlayerID {
			return ErrNotYourTurn
		}
		card, _, found := m.findCard(cardID)
		if !found {
			return ErrCardNotFound
		}
		if card.Ability == nil {
			return fmt.Errorf("%w: %s has no ability", ErrCardNotFound, card.Name)
		}
		result = e.executor(m).ExecuteAbility(*card.Ability, playerID, cardID, targetIDs)
		if result.Success {
			m.appendEvent(rules.EventEffectActivated, playerID, fmt.Sprintf("%s resolved %d effect(s)", card.Name, result.EffectsExecuted), map[string]string{
				"cardId": cardID,
			})
		}
		return nil
	})
	return result, err
}

// QueueTrigger enqueues a simultaneous trigger for SEGOC ordering.
func (e *Engine) QueueTrigger(ctx context.Context, matchID string, trigger rules.QueuedTrigger) error {
	return e.mutate(ctx, matchID, func(m *Match) error {
		if !m.IsActive() {
			return ErrMatchFinished
		}
		m.Chain.QueueTrigger(trigger)
		return nil
	})
}

// OpenResponseWindow orders all queued triggers onto the chain by the
// SEGOC rule and opens the window for responses.
func (e *Engine) OpenResponseWindow(ctx context.Context, matchID string) ([]rules.ChainLink, error) {
	var links []rules.ChainLink
	err := e.mutate(ctx, matchID, func(m *Match) error {
		if !m.IsActive() {
			return ErrMatchFinished
		}
		links = m.Chain.OpenResponseWindow(m.Turn.CurrentPlayerID)
		for _, link := range links {
			m.appendEvent(rules.EventChainLinkAdded, link.ControllerID, fmt.Sprintf("Trigger queued as chain link (order %d)", link.SegocOrder), map[string]string{
				"cardId": link.SourceCardID,
			})
		}
		return nil
	})
	return links, err
}

// PassPriority records a priority pass. When both players have passed
// consecutively with nothing pending, the chain resolves LIFO and the
// window closes.
func (e *Engine) PassPriority(ctx context.Context, matchID, playerID string) (bool, error) {
	resolved := false
	err := e.mutate(ctx, matchID, func(m *Match) error {
		if !m.IsActive() {
			return ErrMatchFinished
		}
		if m.Chain.PassPriority(playerID) {
			e.resolveChain(m)
			resolved = true
		}
		return nil
	})
	return resolved, err
}

// resolveChain resolves every link LIFO. A negated link still resolves
// (consuming the chain position) but performs no effect; a link whose
// source card left the field fizzles.
func (e *Engine) resolveChain(m *Match) {
	for {
		link, ok := m.Chain.NextToResolve()
		if !ok {
			break
		}
		// Copy before executing: effect dispatch may grow the link slice.
		current := *link
		link.Resolved = true

		if current.Negated {
			m.appendEvent(rules.EventChainLinkNegated, current.ControllerID, "Negated effect resolved with no result", map[string]string{
				"cardId": current.SourceCardID,
			})
			continue
		}
		card, found := m.findFieldCard(current.SourceCardID)
		if !found || card.Ability == nil || current.EffectIndex >= len(card.Ability.Effects) {
			m.appendEvent(rules.EventChainResolved, current.ControllerID, "Effect fizzled", map[string]string{
				"cardId": current.SourceCardID,
			})
			continue
		}
		if current.NegatesLinkID != "" {
			if m.Chain.Negate(current.NegatesLinkID) {
				m.appendEvent(rules.EventChainLinkNegated, current.ControllerID, "Chain link negated", nil)
			}
		}
		eff := card.Ability.Effects[current.EffectIndex]
		res := e.executor(m).Execute(eff, current.EffectIndex, current.ControllerID, current.SourceCardID, current.Targets)
		m.appendEvent(rules.EventChainResolved, current.ControllerID, res.Message, map[string]string{
			"cardId": current.SourceCardID,
		})
	}
	m.Chain.Close()
}

// SummonMonster performs a normal summon.
func (e *Engine) SummonMonster(ctx context.Context, matchID, playerID, handCardID string, position BattlePosition) error {
	return e.mutate(ctx, matchID, func(m *Match) error {
		return m.NormalSummon(playerID, handCardID, position)
	})
}

// SetSpellTrap sets a card face-down.
func (e *Engine) SetSpellTrap(ctx context.Context, matchID, playerID, handCardID string) error {
	return e.mutate(ctx, matchID, func(m *Match) error {
		return m.SetCard(playerID, handCardID)
	})
}

// DeclareAttack declares an attack and opens a response window so the
// defender can answer before the damage step.
func (e *Engine) DeclareAttack(ctx context.Context, matchID, playerID, attackerID, targetID string) error {
	return e.mutate(ctx, matchID, func(m *Match) error {
		if err := m.DeclareAttack(playerID, attackerID, targetID); err != nil {
			return err
		}
		m.Chain.OpenResponseWindow(m.Turn.CurrentPlayerID)
		return nil
	})
}

// AnswerReplay answers a pending battle replay with a new target
// choice (empty for a direct attack against an empty board).
func (e *Engine) AnswerReplay(ctx context.Context, matchID, playerID, targetID string) error {
	return e.mutate(ctx, matchID, func(m *Match) error {
		if !m.IsActive() {
			return ErrMatchFinished
		}
		return m.ChooseReplacementTarget(playerID, targetID)
	})
}

// ResolveBattle applies the damage step of the pending attack. If the
// defender's board changed during the response window and the original
// target is gone, replayPending is reported instead and the attacker
// must answer the replay first.
func (e *Engine) ResolveBattle(ctx context.Context, matchID, playerID string) (string, bool, error) {
	var (
		message       string
		replayPending bool
	)
	err := e.mutate(ctx, matchID, func(m *Match) error {
		if !m.IsActive() {
			return ErrMatchFinished
		}
		if !m.Turn.IsTurnPlayer(playerID) {
			return ErrNotYourTurn
		}
		if m.Chain.IsOpen() {
			return ErrChainOpen
		}
		if m.CheckBattleReplay() {
			replayPending = true
			return nil
		}
		msg, err := m.ResolveBattleDamage()
		if err != nil {
			return err
		}
		message = msg
		return nil
	})
	return message, replayPending, err
}

// Heartbeat records a fresh heartbeat for one side and clears a
// disconnect timer aimed at it.
func (e *Engine) Heartbeat(ctx context.Context, matchID, playerID string) error {
	return e.mutate(ctx, matchID, func(m *Match) error {
		if !m.IsActive() {
			return ErrMatchFinished
		}
		m.RecordHeartbeat(playerID, timeNow())
		return nil
	})
}

// Forfeit ends the match against the given player. Idempotent.
func (e *Engine) Forfeit(ctx context.Context, matchID, playerID string) error {
	return e.mutate(ctx, matchID, func(m *Match) error {
		m.Forfeit(playerID)
		return nil
	})
}
