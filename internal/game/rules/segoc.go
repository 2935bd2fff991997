package rules

import (
	"sort"

	"github.com/google/uuid"
)

// SEGOC ordering tiers. Simultaneous triggers go on chain in tier
// order; within a tier the enqueue order is preserved, so the combined
// key is a strict total order and resolution is replay-safe.
const (
	segocTurnPlayerMandatory = 0
	segocOpponentMandatory   = 1
	segocTurnPlayerOptional  = 2
	segocOpponentOptional    = 3

	// segocTierSpan must exceed the number of triggers a single event
	// can queue so tier always dominates the enqueue sequence.
	segocTierSpan = 1000
)

// QueuedTrigger is a trigger waiting to be ordered onto the chain. Seq
// is assigned at enqueue time and breaks ties within a SEGOC tier.
type QueuedTrigger struct {
	SourceCardID string   `json:"sourceCardId"`
	ControllerID string   `json:"controllerId"`
	EffectIndex  int      `json:"effectIndex"`
	SpellSpeed   int      `json:"spellSpeed"`
	Mandatory    bool     `json:"mandatory"`
	Targets      []string `json:"targets,omitempty"`
	Seq          int      `json:"seq"`
}

// SegocOrder computes the strict total order key for a trigger given
// the turn player. Lower keys go on the chain first.
func (qt QueuedTrigger) SegocOrder(turnPlayerID string) int {
	tier := segocOpponentOptional
	isTurnPlayer := qt.ControllerID == turnPlayerID
	switch {
	case qt.Mandatory && isTurnPlayer:
		tier = segocTurnPlayerMandatory
	case qt.Mandatory:
		tier = segocOpponentMandatory
	case isTurnPlayer:
		tier = segocTurnPlayerOptional
	}
	return tier*segocTierSpan + qt.Seq
}

// QueueTrigger enqueues a simultaneous trigger, assigning its sequence
// number. Triggers stay pending until the response window orders them.
func (c *Chain) QueueTrigger(trigger QueuedTrigger) {
	trigger.Seq = c.NextSeq
	c.NextSeq++
	if trigger.SpellSpeed < 1 {
		trigger.SpellSpeed = 1
	}
	c.Pending = append(c.Pending, trigger)
}

// OpenResponseWindow orders all pending triggers onto the chain by the
// SEGOC rule and opens the window for responses. Ordering is a pure
// function of (mandatory, turn player, enqueue order): re-running the
// same trigger batch always yields the same chain.
func (c *Chain) OpenResponseWindow(turnPlayerID string) []ChainLink {
	pending := c.Pending
	c.Pending = nil

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].SegocOrder(turnPlayerID) < pending[j].SegocOrder(turnPlayerID)
	})

	added := make([]ChainLink, 0, len(pending))
	c.Open = true
	c.Passes = 0
	c.LastPasser = ""
	for _, trigger := range pending {
		link := ChainLink{
			SourceCardID: trigger.SourceCardID,
			ControllerID: trigger.ControllerID,
			EffectIndex:  trigger.EffectIndex,
			SpellSpeed:   trigger.SpellSpeed,
			Targets:      trigger.Targets,
			SegocOrder:   trigger.SegocOrder(turnPlayerID),
		}
		// SEGOC placement ignores the speed gate: simultaneous triggers
		// of any speed all go on the same chain.
		link.ID = uuid.NewString()
		c.Links = append(c.Links, link)
		added = append(added, link)
	}
	return added
}
