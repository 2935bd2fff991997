package restriction

// Record marks a single use of a once-per-turn restricted effect.
// Hard records (HOPT) survive the normal turn reset and only expire
// once the turn counter reaches ResetOnTurn.
type Record struct {
	CardID      string `json:"cardId"`
	EffectIndex int    `json:"effectIndex"`
	PlayerID    string `json:"playerId"`
	TurnUsed    int    `json:"turnUsed"`
	Hard        bool   `json:"hard,omitempty"`
	ResetOnTurn int    `json:"resetOnTurn,omitempty"`
}

// Tracker holds the active OPT/HOPT usage records for one match.
// It is embedded in the match document and serialized with it.
type Tracker struct {
	Records []Record `json:"records,omitempty"`
}

// CanUse reports whether the given card effect may still be activated
// by the player. A matching active record means the effect was already
// used inside its restriction window.
func (t *Tracker) CanUse(cardID string, effectIndex int, playerID string) bool {
	for _, r := range t.Records {
		if r.CardID == cardID && r.EffectIndex == effectIndex && r.PlayerID == playerID {
			return false
		}
	}
	return true
}

// Use records an activation. For hard restrictions the record persists
// until resetOnTurn; a zero resetOnTurn means it never resets for the
// rest of the match. Duplicate records for the same key are not added.
func (t *Tracker) Use(cardID string, effectIndex int, playerID string, turn int, hard bool, resetOnTurn int) {
	if !t.CanUse(cardID, effectIndex, playerID) {
		return
	}
	t.Records = append(t.Records, Record{
		CardID:      cardID,
		EffectIndex: effectIndex,
		PlayerID:    playerID,
		TurnUsed:    turn,
		Hard:        hard,
		ResetOnTurn: resetOnTurn,
	})
}

// ResetForTurn clears expired records at the start of a player's turn.
// Normal OPT records belonging to that player are dropped; hard records
// are dropped only when their own resetOnTurn has been reached.
func (t *Tracker) ResetForTurn(turn int, turnPlayerID string) {
	if len(t.Records) == 0 {
		return
	}
	kept := t.Records[:0]
	for _, r := range t.Records {
		if r.Hard {
			if r.ResetOnTurn > 0 && turn >= r.ResetOnTurn {
				continue
			}
			kept = append(kept, r)
			continue
		}
		if r.PlayerID == turnPlayerID {
			continue
		}
		kept = append(kept, r)
	}
	t.Records = kept
}

// ActiveCount returns the number of live records, mostly for inspection.
func (t *Tracker) ActiveCount() int {
	return len(t.Records)
}
