package game

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/nexusduel/duel-server-go/internal/game/effects"
	"github.com/nexusduel/duel-server-go/internal/game/restriction"
	"github.com/nexusduel/duel-server-go/internal/game/rules"
	"github.com/nexusduel/duel-server-go/internal/game/targeting"
)

// MatchStatus is the lifecycle state of a match document.
type MatchStatus string

const (
	StatusActive   MatchStatus = "active"
	StatusFinished MatchStatus = "finished"
)

// BattlePosition is a monster's board orientation.
type BattlePosition string

const (
	PositionAttack  BattlePosition = "attack"
	PositionDefense BattlePosition = "defense"
)

// Board capacity per side.
const (
	maxMonsterZones   = 5
	maxSpellTrapZones = 5
)

// Default match parameters.
const (
	DefaultStartingLP      = 8000
	DefaultOpeningHandSize = 5
)

// Card is a card instance placed in a zone. Moving a card between
// zones is always an atomic transfer through the match; the only
// copy-like operation is token minting, which creates a new instance.
type Card struct {
	InstanceID string `json:"instanceId"`
	Name       string `json:"name"`
	ATK        int    `json:"atk"`
	DEF        int    `json:"def"`

	Position BattlePosition `json:"position,omitempty"`
	FaceUp   bool           `json:"faceUp"`

	CannotBeTargeted          bool `json:"cannotBeTargeted,omitempty"`
	CannotBeDestroyedByBattle bool `json:"cannotBeDestroyedByBattle,omitempty"`
	CannotBeDestroyedByEffect bool `json:"cannotBeDestroyedByEffects,omitempty"`

	SummonedThisTurn bool   `json:"summonedThisTurn,omitempty"`
	Token            bool   `json:"token,omitempty"`
	EquippedTo       string `json:"equippedTo,omitempty"`

	Ability *effects.Ability `json:"ability,omitempty"`
}

// Side holds one player's half of the match: life points and every
// zone as an owned ordered collection. Zones are never handed out as
// mutable references; all movement goes through match methods.
type Side struct {
	PlayerID   string `json:"playerId"`
	LifePoints int    `json:"lifePoints"`

	Hand           []Card `json:"hand"`
	Deck           []Card `json:"deck"`
	Graveyard      []Card `json:"graveyard"`
	Banished       []Card `json:"banished"`
	MonsterZones   []Card `json:"monsterZones"`
	SpellTrapZones []Card `json:"spellTrapZones"`
	FieldSlot      *Card  `json:"fieldSlot,omitempty"`

	NormalSummonUsed bool `json:"normalSummonUsed"`
}

// DisconnectTimer is the running grace period against one side.
type DisconnectTimer struct {
	StartedAt      time.Time `json:"startedAt"`
	TargetPlayerID string    `json:"targetPlayerId"`
}

// DisconnectState tracks per-side heartbeats and the at-most-one
// disconnect timer for the match.
type DisconnectState struct {
	HostLastHeartbeat     *time.Time       `json:"hostLastHeartbeat,omitempty"`
	OpponentLastHeartbeat *time.Time       `json:"opponentLastHeartbeat,omitempty"`
	Timer                 *DisconnectTimer `json:"timer,omitempty"`
}

// Match is the root aggregate: one document per game. All mutation
// happens through its methods inside a store transaction.
type Match struct {
	ID      string      `json:"id"`
	LobbyID string      `json:"lobbyId"`
	Status  MatchStatus `json:"status"`
	Wagered bool        `json:"wagered"`

	HostID     string `json:"hostId"`
	OpponentID string `json:"opponentId"`

	Turn         rules.TurnTracker   `json:"turn"`
	Host         Side                `json:"host"`
	Opponent     Side                `json:"opponent"`
	Chain        rules.Chain         `json:"chain"`
	Restrictions restriction.Tracker `json:"restrictions"`
	Battle       *PendingBattle      `json:"battle,omitempty"`
	Disconnect   DisconnectState     `json:"disconnect"`

	WinnerID     string `json:"winnerId,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`

	Seed      int64     `json:"seed"`
	CreatedAt time.Time `json:"createdAt"`

	// pendingEvents accumulates log records during one transaction;
	// the caller drains them after commit. Not serialized.
	pendingEvents []rules.Event
}

// MatchOptions configures match creation. Zero values fall back to the
// package defaults.
type MatchOptions struct {
	Phases     []rules.Phase
	StartingLP int
	HandSize   int
	Wagered    bool
	Seed       int64
}

// NewMatch builds the aggregate from two deck lists: decks are
// shuffled with the match seed (replay determinism), opening hands are
// drawn, and the host takes the first turn.
func NewMatch(lobbyID, hostID, opponentID string, hostDeck, opponentDeck []Card, opts MatchOptions) *Match {
	lp := opts.StartingLP
	if lp <= 0 {
		lp = DefaultStartingLP
	}
	handSize := opts.HandSize
	if handSize <= 0 {
		handSize = DefaultOpeningHandSize
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	m := &Match{
		ID:         uuid.NewString(),
		LobbyID:    lobbyID,
		Status:     StatusActive,
		Wagered:    opts.Wagered,
		HostID:     hostID,
		OpponentID: opponentID,
		Turn:       rules.NewTurnTracker(opts.Phases, hostID),
		Host:       newSide(hostID, lp, hostDeck),
		Opponent:   newSide(opponentID, lp, opponentDeck),
		Seed:       seed,
		CreatedAt:  time.Now(),
	}

	rng := rand.New(rand.NewSource(seed))
	shuffleDeck(m.Host.Deck, rng)
	shuffleDeck(m.Opponent.Deck, rng)
	m.DrawCards(hostID, handSize)
	m.DrawCards(opponentID, handSize)
	return m
}

func newSide(playerID string, lp int, deck []Card) Side {
	cards := make([]Card, len(deck))
	copy(cards, deck)
	for i := range cards {
		if cards[i].InstanceID == "" {
			cards[i].InstanceID = uuid.NewString()
		}
	}
	return Side{
		PlayerID:   playerID,
		LifePoints: lp,
		Deck:       cards,
		Hand:       []Card{},
		Graveyard:  []Card{},
		Banished:   []Card{},
	}
}

func shuffleDeck(deck []Card, rng *rand.Rand) {
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
}

// SideOf returns the side owned by the player.
func (m *Match) SideOf(playerID string) (*Side, bool) {
	switch playerID {
	case m.HostID:
		return &m.Host, true
	case m.OpponentID:
		return &m.Opponent, true
	}
	return nil, false
}

// OpponentOf returns the other player's id.
func (m *Match) OpponentOf(playerID string) string {
	if playerID == m.HostID {
		return m.OpponentID
	}
	return m.HostID
}

// CurrentTurn returns the current turn number.
func (m *Match) CurrentTurn() int {
	return m.Turn.TurnNumber
}

// IsActive reports whether the match still accepts mutations.
func (m *Match) IsActive() bool {
	return m.Status == StatusActive
}

// appendEvent queues a log record for this transaction.
func (m *Match) appendEvent(eventType rules.EventType, playerID, description string, metadata map[string]string) {
	evt := rules.NewEvent(eventType, m.ID, m.Turn.TurnNumber, playerID, description)
	evt.Metadata = metadata
	m.pendingEvents = append(m.pendingEvents, evt)
}

// DrainEvents returns and clears the events accumulated since the last
// drain. Callers persist and publish them after the mutation commits.
func (m *Match) DrainEvents() []rules.Event {
	events := m.pendingEvents
	m.pendingEvents = nil
	return events
}

// finish ends the match. Further mutation of a finished match is
// rejected by the entry points, so this is terminal.
func (m *Match) finish(winnerID, reason string) {
	if m.Status == StatusFinished {
		return
	}
	m.Status = StatusFinished
	m.WinnerID = winnerID
	m.FinishReason = reason
	m.appendEvent(rules.EventMatchEnded, winnerID, fmt.Sprintf("Match ended: %s", reason), nil)
}

// Forfeit ends the match against the forfeiting player. Idempotent:
// forfeiting an already-finished match is a no-op.
func (m *Match) Forfeit(forfeitingPlayerID string) {
	if m.Status == StatusFinished {
		return
	}
	winner := m.OpponentOf(forfeitingPlayerID)
	m.appendEvent(rules.EventMatchForfeited, forfeitingPlayerID, "Player forfeited the match", nil)
	m.finish(winner, "forfeit")
}

// ---- zone movement ----

// removeCard atomically removes a card instance from whatever zone
// holds it and returns it along with the owning side.
func (m *Match) removeCard(instanceID string) (Card, *Side, bool) {
	for _, side := range []*Side{&m.Host, &m.Opponent} {
		for _, zone := range []*[]Card{&side.Hand, &side.Deck, &side.Graveyard, &side.Banished, &side.MonsterZones, &side.SpellTrapZones} {
			for i, card := range *zone {
				if card.InstanceID == instanceID {
					*zone = append((*zone)[:i], (*zone)[i+1:]...)
					return card, side, true
				}
			}
		}
		if side.FieldSlot != nil && side.FieldSlot.InstanceID == instanceID {
			card := *side.FieldSlot
			side.FieldSlot = nil
			return card, side, true
		}
	}
	return Card{}, nil, false
}

// findCard locates a card instance in any zone without removing it.
func (m *Match) findCard(instanceID string) (*Card, *Side, bool) {
	for _, side := range []*Side{&m.Host, &m.Opponent} {
		for _, zone := range []*[]Card{&side.Hand, &side.Deck, &side.Graveyard, &side.Banished, &side.MonsterZones, &side.SpellTrapZones} {
			for i := range *zone {
				if (*zone)[i].InstanceID == instanceID {
					return &(*zone)[i], side, true
				}
			}
		}
		if side.FieldSlot != nil && side.FieldSlot.InstanceID == instanceID {
			return side.FieldSlot, side, true
		}
	}
	return nil, nil, false
}

// findFieldCard locates a card instance on the field only: monster
// zones, spell/trap zones, or the field slot. Cards in the hand,
// deck, graveyard, or banished pile are not on the field.
func (m *Match) findFieldCard(instanceID string) (*Card, bool) {
	for _, side := range []*Side{&m.Host, &m.Opponent} {
		for _, zone := range []*[]Card{&side.MonsterZones, &side.SpellTrapZones} {
			for i := range *zone {
				if (*zone)[i].InstanceID == instanceID {
					return &(*zone)[i], true
				}
			}
		}
		if side.FieldSlot != nil && side.FieldSlot.InstanceID == instanceID {
			return side.FieldSlot, true
		}
	}
	return nil, false
}

// FindCardForTarget implements targeting.GameStateAccessor.
func (m *Match) FindCardForTarget(cardID string) (targeting.TargetCardInfo, bool) {
	card, side, ok := m.findCard(cardID)
	if !ok {
		return targeting.TargetCardInfo{}, false
	}
	return targeting.TargetCardInfo{
		ID:               card.InstanceID,
		Name:             card.Name,
		ControllerID:     side.PlayerID,
		FaceUp:           card.FaceUp,
		CannotBeTargeted: card.CannotBeTargeted,
	}, true
}

// DrawCards moves up to count cards from the top of the player's deck
// to their hand. It returns the number actually moved; deck-out loss
// is enforced by the draw-phase draw, not by effect draws.
func (m *Match) DrawCards(playerID string, count int) int {
	side, ok := m.SideOf(playerID)
	if !ok || count <= 0 {
		return 0
	}
	moved := 0
	for moved < count && len(side.Deck) > 0 {
		card := side.Deck[0]
		side.Deck = side.Deck[1:]
		side.Hand = append(side.Hand, card)
		moved++
	}
	if moved > 0 {
		m.appendEvent(rules.EventCardDrawn, playerID, fmt.Sprintf("Drew %d card(s)", moved), nil)
	}
	return moved
}

// BeginTurnDraw performs the mandatory draw-phase draw. Drawing from
// an empty deck loses the match (deck-out). Returns false on deck-out.
func (m *Match) BeginTurnDraw(playerID string) bool {
	side, ok := m.SideOf(playerID)
	if !ok {
		return false
	}
	if len(side.Deck) == 0 {
		m.finish(m.OpponentOf(playerID), "deck-out")
		return false
	}
	m.DrawCards(playerID, 1)
	return true
}

// DealDamage reduces the player's life points, clamped at zero. A side
// reaching zero immediately ends the match.
func (m *Match) DealDamage(playerID string, amount int) {
	side, ok := m.SideOf(playerID)
	if !ok || amount <= 0 {
		return
	}
	side.LifePoints -= amount
	if side.LifePoints < 0 {
		side.LifePoints = 0
	}
	m.appendEvent(rules.EventDamageDealt, playerID, fmt.Sprintf("Dealt %d damage", amount), map[string]string{
		"remainingLP": fmt.Sprintf("%d", side.LifePoints),
	})
	if side.LifePoints == 0 {
		m.finish(m.OpponentOf(playerID), "life points reached zero")
	}
}

// GainLife adds to the player's life points.
func (m *Match) GainLife(playerID string, amount int) {
	side, ok := m.SideOf(playerID)
	if !ok || amount <= 0 {
		return
	}
	side.LifePoints += amount
	m.appendEvent(rules.EventLifeGained, playerID, fmt.Sprintf("Gained %d LP", amount), nil)
}

// PayLife pays a life point cost. Payment must leave the player above
// zero; a payment that would defeat them is refused.
func (m *Match) PayLife(playerID string, amount int) bool {
	side, ok := m.SideOf(playerID)
	if !ok || amount <= 0 || side.LifePoints <= amount {
		return false
	}
	side.LifePoints -= amount
	m.appendEvent(rules.EventLifePaid, playerID, fmt.Sprintf("Paid %d LP", amount), nil)
	return true
}

// DiscardRandom discards count cards chosen by the match's seeded RNG,
// so a replay of the same match makes the same choices.
func (m *Match) DiscardRandom(playerID string, count int) int {
	side, ok := m.SideOf(playerID)
	if !ok || count <= 0 {
		return 0
	}
	rng := rand.New(rand.NewSource(m.Seed ^ int64(m.Turn.TurnNumber)<<16 ^ int64(len(side.Hand))))
	discarded := 0
	for discarded < count && len(side.Hand) > 0 {
		i := rng.Intn(len(side.Hand))
		card := side.Hand[i]
		side.Hand = append(side.Hand[:i], side.Hand[i+1:]...)
		side.Graveyard = append(side.Graveyard, card)
		m.appendEvent(rules.EventCardDiscarded, playerID, fmt.Sprintf("Discarded %s", card.Name), nil)
		discarded++
	}
	return discarded
}

// DestroyCard sends a card to its owner's graveyard unless it is
// protected against effect destruction. Tokens cease to exist instead
// of hitting the graveyard.
func (m *Match) DestroyCard(cardID string) bool {
	card, _, found := m.findCard(cardID)
	if !found || card.CannotBeDestroyedByEffect {
		return false
	}
	removed, side, _ := m.removeCard(cardID)
	if !removed.Token {
		side.Graveyard = append(side.Graveyard, removed)
	}
	m.appendEvent(rules.EventCardDestroyed, side.PlayerID, fmt.Sprintf("%s was destroyed", removed.Name), nil)
	return true
}

// destroyByBattle applies battle destruction, which only the battle
// protection flag prevents.
func (m *Match) destroyByBattle(cardID string) bool {
	card, _, found := m.findCard(cardID)
	if !found || card.CannotBeDestroyedByBattle {
		return false
	}
	removed, side, _ := m.removeCard(cardID)
	if !removed.Token {
		side.Graveyard = append(side.Graveyard, removed)
	}
	m.appendEvent(rules.EventCardDestroyed, side.PlayerID, fmt.Sprintf("%s was destroyed by battle", removed.Name), nil)
	return true
}

// BanishCard removes a card from play entirely.
func (m *Match) BanishCard(cardID string) bool {
	removed, side, ok := m.removeCard(cardID)
	if !ok {
		return false
	}
	if !removed.Token {
		side.Banished = append(side.Banished, removed)
	}
	m.appendEvent(rules.EventCardBanished, side.PlayerID, fmt.Sprintf("%s was banished", removed.Name), nil)
	return true
}

// BounceCard returns a card to its owner's hand. Tokens vanish.
func (m *Match) BounceCard(cardID string) bool {
	removed, side, ok := m.removeCard(cardID)
	if !ok {
		return false
	}
	if !removed.Token {
		removed.Position = ""
		removed.SummonedThisTurn = false
		side.Hand = append(side.Hand, removed)
	}
	m.appendEvent(rules.EventCardBounced, side.PlayerID, fmt.Sprintf("%s was returned to the hand", removed.Name), nil)
	return true
}

// ModifyStats applies ATK/DEF deltas to a card in place. Stats floor
// at zero.
func (m *Match) ModifyStats(cardID string, atkDelta, defDelta int) bool {
	card, side, ok := m.findCard(cardID)
	if !ok {
		return false
	}
	card.ATK += atkDelta
	card.DEF += defDelta
	if card.ATK < 0 {
		card.ATK = 0
	}
	if card.DEF < 0 {
		card.DEF = 0
	}
	m.appendEvent(rules.EventStatsModified, side.PlayerID, fmt.Sprintf("%s is now %d/%d", card.Name, card.ATK, card.DEF), nil)
	return true
}

// ChangePosition flips a monster between attack and defense.
func (m *Match) ChangePosition(cardID string) bool {
	card, side, ok := m.findCard(cardID)
	if !ok {
		return false
	}
	if card.Position == PositionAttack {
		card.Position = PositionDefense
	} else {
		card.Position = PositionAttack
	}
	m.appendEvent(rules.EventPositionChanged, side.PlayerID, fmt.Sprintf("%s changed to %s position", card.Name, card.Position), nil)
	return true
}

// CreateToken mints a new monster instance into a free monster zone,
// returning its instance id or "" when the board is full.
func (m *Match) CreateToken(playerID, name string, atk, def int) string {
	side, ok := m.SideOf(playerID)
	if !ok || len(side.MonsterZones) >= maxMonsterZones {
		return ""
	}
	token := Card{
		InstanceID:       uuid.NewString(),
		Name:             name,
		ATK:              atk,
		DEF:              def,
		Position:         PositionAttack,
		FaceUp:           true,
		Token:            true,
		SummonedThisTurn: true,
	}
	side.MonsterZones = append(side.MonsterZones, token)
	m.appendEvent(rules.EventTokenCreated, playerID, fmt.Sprintf("Summoned %s token", name), nil)
	return token.InstanceID
}

// NormalSummon plays a monster from the hand to a free monster zone.
// One normal summon per turn per side; main phases only.
func (m *Match) NormalSummon(playerID, handCardID string, position BattlePosition) error {
	if !m.IsActive() {
		return ErrMatchFinished
	}
	if !m.Turn.IsTurnPlayer(playerID) {
		return ErrNotYourTurn
	}
	phase := m.Turn.CurrentPhase()
	if phase != rules.PhaseMain && phase != rules.PhaseMain2 {
		return fmt.Errorf("%w: cannot summon during %s", ErrWrongPhase, phase)
	}
	side, _ := m.SideOf(playerID)
	if side.NormalSummonUsed {
		return ErrNormalSummonUsed
	}
	if len(side.MonsterZones) >= maxMonsterZones {
		return ErrZoneFull
	}

	idx := -1
	for i, card := range side.Hand {
		if card.InstanceID == handCardID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrCardNotFound
	}

	card := side.Hand[idx]
	side.Hand = append(side.Hand[:idx], side.Hand[idx+1:]...)
	card.Position = position
	card.FaceUp = position == PositionAttack
	card.SummonedThisTurn = true
	side.MonsterZones = append(side.MonsterZones, card)
	side.NormalSummonUsed = true
	m.appendEvent(rules.EventNormalSummon, playerID, fmt.Sprintf("Summoned %s", card.Name), nil)
	return nil
}

// SetCard places a spell/trap from the hand face-down.
func (m *Match) SetCard(playerID, handCardID string) error {
	if !m.IsActive() {
		return ErrMatchFinished
	}
	if !m.Turn.IsTurnPlayer(playerID) {
		return ErrNotYourTurn
	}
	phase := m.Turn.CurrentPhase()
	if phase != rules.PhaseMain && phase != rules.PhaseMain2 {
		return fmt.Errorf("%w: cannot set during %s", ErrWrongPhase, phase)
	}
	side, _ := m.SideOf(playerID)
	if len(side.SpellTrapZones) >= maxSpellTrapZones {
		return ErrZoneFull
	}

	idx := -1
	for i, card := range side.Hand {
		if card.InstanceID == handCardID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrCardNotFound
	}

	card := side.Hand[idx]
	side.Hand = append(side.Hand[:idx], side.Hand[idx+1:]...)
	card.FaceUp = false
	side.SpellTrapZones = append(side.SpellTrapZones, card)
	m.appendEvent(rules.EventCardSet, playerID, "Set a card", nil)
	return nil
}

// resetForNewTurn clears the new turn player's per-turn state.
func (m *Match) resetForNewTurn() {
	playerID := m.Turn.CurrentPlayerID
	side, ok := m.SideOf(playerID)
	if !ok {
		return
	}
	side.NormalSummonUsed = false
	for i := range side.MonsterZones {
		side.MonsterZones[i].SummonedThisTurn = false
	}
	m.Restrictions.ResetForTurn(m.Turn.TurnNumber, playerID)
}
