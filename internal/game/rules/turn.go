package rules

import "strings"

// Phase represents one phase of a duel turn.
type Phase string

const (
	PhaseDraw    Phase = "draw"
	PhaseStandby Phase = "standby"
	PhaseMain    Phase = "main"
	PhaseBattle  Phase = "battle"
	PhaseMain2   Phase = "main2"
	PhaseEnd     Phase = "end"
)

// DefaultPhaseSequence is the turn structure used when a match does not
// configure its own. The sequence is cyclic: advancing past the last
// phase ends the turn and restarts from the first element.
func DefaultPhaseSequence() []Phase {
	return []Phase{PhaseDraw, PhaseStandby, PhaseMain, PhaseBattle, PhaseMain2, PhaseEnd}
}

// TurnTracker tracks phase and turn progression for one match. It is
// embedded in the match document; all fields serialize with it.
type TurnTracker struct {
	Phases          []Phase `json:"phases"`
	PhaseIndex      int     `json:"phaseIndex"`
	TurnNumber      int     `json:"turnNumber"`
	CurrentPlayerID string  `json:"currentPlayerId"`
}

// NewTurnTracker creates a tracker at turn 1, first phase, with the
// given player as turn player. A nil or empty phase list falls back to
// the default sequence.
func NewTurnTracker(phases []Phase, firstPlayer string) TurnTracker {
	if len(phases) == 0 {
		phases = DefaultPhaseSequence()
	}
	return TurnTracker{
		Phases:          phases,
		PhaseIndex:      0,
		TurnNumber:      1,
		CurrentPlayerID: strings.TrimSpace(firstPlayer),
	}
}

// CurrentPhase returns the phase currently in progress.
func (tt *TurnTracker) CurrentPhase() Phase {
	if tt.PhaseIndex < 0 || tt.PhaseIndex >= len(tt.Phases) {
		return ""
	}
	return tt.Phases[tt.PhaseIndex]
}

// IsTurnPlayer reports whether the given player holds the turn.
func (tt *TurnTracker) IsTurnPlayer(playerID string) bool {
	return playerID != "" && tt.CurrentPlayerID == playerID
}

// ContainsPhase reports whether the phase is part of the configured
// sequence.
func (tt *TurnTracker) ContainsPhase(p Phase) bool {
	for _, phase := range tt.Phases {
		if phase == p {
			return true
		}
	}
	return false
}

// Advance moves to the next phase. When the end of the sequence is
// reached the turn number is incremented, the turn flips to
// nextPlayerID, and the sequence restarts from its first phase. The
// returned flag reports whether the turn ended.
func (tt *TurnTracker) Advance(nextPlayerID string) (Phase, bool) {
	tt.PhaseIndex++
	if tt.PhaseIndex < len(tt.Phases) {
		return tt.CurrentPhase(), false
	}

	tt.PhaseIndex = 0
	tt.TurnNumber++
	if next := strings.TrimSpace(nextPlayerID); next != "" {
		tt.CurrentPlayerID = next
	}
	return tt.CurrentPhase(), true
}
