package rules

import (
	"errors"

	"github.com/google/uuid"
)

// ErrInsufficientSpellSpeed is returned when a card of lower spell
// speed is added in response to a faster effect already on the chain.
var ErrInsufficientSpellSpeed = errors.New("insufficient spell speed")

// ErrChainClosed is returned when a link is added without an open
// response window.
var ErrChainClosed = errors.New("no open response window")

// ChainLink is one entry on the active chain. Links resolve last-in
// first-out; a negated link still resolves (consuming its place in the
// chain) but performs no effect.
type ChainLink struct {
	ID            string   `json:"id"`
	SourceCardID  string   `json:"sourceCardId"`
	ControllerID  string   `json:"controllerId"`
	EffectIndex   int      `json:"effectIndex"`
	SpellSpeed    int      `json:"spellSpeed"`
	Targets       []string `json:"targets,omitempty"`
	NegatesLinkID string   `json:"negatesLinkId,omitempty"`
	Resolved      bool     `json:"resolved"`
	Negated       bool     `json:"negated"`
	SegocOrder    int      `json:"segocOrder,omitempty"`
}

// Chain manages the response window and the LIFO chain stack for one
// match. It is pure state embedded in the match document; resolution
// side effects are dispatched by the engine, which pops links through
// NextToResolve.
type Chain struct {
	Open       bool            `json:"open"`
	Links      []ChainLink     `json:"links,omitempty"`
	Pending    []QueuedTrigger `json:"pending,omitempty"`
	Passes     int             `json:"passes"`
	LastPasser string          `json:"lastPasser,omitempty"`
	NextSeq    int             `json:"nextSeq"`
}

// IsOpen reports whether a response window is open or triggers are
// still waiting to be ordered. Phase advancement is rejected while
// this holds.
func (c *Chain) IsOpen() bool {
	return c.Open || len(c.Pending) > 0
}

// AddLink places a link on top of the chain. The link's spell speed
// must be at least the highest speed among unresolved links already on
// the chain. Adding a link resets the consecutive-pass count.
func (c *Chain) AddLink(link ChainLink) error {
	if !c.Open {
		return ErrChainClosed
	}
	if link.SpellSpeed < c.MaxActiveSpeed() {
		return ErrInsufficientSpellSpeed
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	c.Links = append(c.Links, link)
	c.Passes = 0
	c.LastPasser = ""
	return nil
}

// MaxActiveSpeed returns the highest spell speed among unresolved
// links, or 0 for an empty chain.
func (c *Chain) MaxActiveSpeed() int {
	speed := 0
	for _, link := range c.Links {
		if !link.Resolved && link.SpellSpeed > speed {
			speed = link.SpellSpeed
		}
	}
	return speed
}

// PassPriority records a priority pass by the given player. The window
// is ready to resolve once both players have passed consecutively with
// no pending triggers; a repeated pass by the same player does not
// count twice.
func (c *Chain) PassPriority(playerID string) bool {
	if !c.Open {
		return false
	}
	if playerID != "" && playerID == c.LastPasser {
		return c.ReadyToResolve()
	}
	c.Passes++
	c.LastPasser = playerID
	return c.ReadyToResolve()
}

// ReadyToResolve reports whether both players passed consecutively
// with an empty pending queue.
func (c *Chain) ReadyToResolve() bool {
	return c.Open && c.Passes >= 2 && len(c.Pending) == 0
}

// NextToResolve returns the topmost unresolved link, LIFO. Links added
// during resolution sit above previously queued links and are returned
// first.
func (c *Chain) NextToResolve() (*ChainLink, bool) {
	for i := len(c.Links) - 1; i >= 0; i-- {
		if !c.Links[i].Resolved {
			return &c.Links[i], true
		}
	}
	return nil, false
}

// Negate marks the link with the given id as negated. The link still
// occupies its chain position and resolves as a no-op.
func (c *Chain) Negate(linkID string) bool {
	for i := range c.Links {
		if c.Links[i].ID == linkID && !c.Links[i].Resolved {
			c.Links[i].Negated = true
			return true
		}
	}
	return false
}

// Link returns the link with the given id, if present.
func (c *Chain) Link(linkID string) (*ChainLink, bool) {
	for i := range c.Links {
		if c.Links[i].ID == linkID {
			return &c.Links[i], true
		}
	}
	return nil, false
}

// Close ends the response window after resolution, returning the
// resolved links for the match log and resetting chain state.
func (c *Chain) Close() []ChainLink {
	resolved := c.Links
	c.Open = false
	c.Links = nil
	c.Pending = nil
	c.Passes = 0
	c.LastPasser = ""
	return resolved
}
