package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegocTierOrdering(t *testing.T) {
	c := &Chain{}

	// Enqueue in deliberately scrambled tier order.
	c.QueueTrigger(QueuedTrigger{SourceCardID: "opp-opt", ControllerID: "bob"})
	c.QueueTrigger(QueuedTrigger{SourceCardID: "tp-mand", ControllerID: "alice", Mandatory: true})
	c.QueueTrigger(QueuedTrigger{SourceCardID: "tp-opt", ControllerID: "alice"})
	c.QueueTrigger(QueuedTrigger{SourceCardID: "opp-mand", ControllerID: "bob", Mandatory: true})

	links := c.OpenResponseWindow("alice")
	require.Len(t, links, 4)

	got := make([]string, 0, 4)
	for _, link := range links {
		got = append(got, link.SourceCardID)
	}
	assert.Equal(t, []string{"tp-mand", "opp-mand", "tp-opt", "opp-opt"}, got)
}

func TestSegocEnqueueOrderWithinTier(t *testing.T) {
	c := &Chain{}
	c.QueueTrigger(QueuedTrigger{SourceCardID: "first", ControllerID: "alice", Mandatory: true})
	c.QueueTrigger(QueuedTrigger{SourceCardID: "second", ControllerID: "alice", Mandatory: true})
	c.QueueTrigger(QueuedTrigger{SourceCardID: "third", ControllerID: "alice", Mandatory: true})

	links := c.OpenResponseWindow("alice")
	require.Len(t, links, 3)
	assert.Equal(t, "first", links[0].SourceCardID)
	assert.Equal(t, "second", links[1].SourceCardID)
	assert.Equal(t, "third", links[2].SourceCardID)
	assert.Less(t, links[0].SegocOrder, links[1].SegocOrder)
	assert.Less(t, links[1].SegocOrder, links[2].SegocOrder)
}

// Re-running the same trigger batch must always yield the same
// resolution order: the order key is a pure function of
// (mandatory, turn player, enqueue order).
func TestSegocDeterminism(t *testing.T) {
	batch := func() *Chain {
		c := &Chain{}
		c.QueueTrigger(QueuedTrigger{SourceCardID: "a", ControllerID: "bob", Mandatory: true})
		c.QueueTrigger(QueuedTrigger{SourceCardID: "b", ControllerID: "alice"})
		c.QueueTrigger(QueuedTrigger{SourceCardID: "c", ControllerID: "alice", Mandatory: true})
		c.QueueTrigger(QueuedTrigger{SourceCardID: "d", ControllerID: "bob"})
		c.QueueTrigger(QueuedTrigger{SourceCardID: "e", ControllerID: "alice"})
		return c
	}

	var first []string
	for run := 0; run < 10; run++ {
		links := batch().OpenResponseWindow("alice")
		got := make([]string, 0, len(links))
		for _, link := range links {
			got = append(got, link.SourceCardID)
		}
		if first == nil {
			first = got
			continue
		}
		require.Equal(t, first, got, "run %d diverged", run)
	}
	assert.Equal(t, []string{"c", "a", "b", "e", "d"}, first)
}

func TestSegocOrderKey(t *testing.T) {
	tp := QueuedTrigger{ControllerID: "alice", Mandatory: true, Seq: 5}
	opp := QueuedTrigger{ControllerID: "bob", Mandatory: true, Seq: 1}

	// Tier dominates sequence: the turn player's later trigger still
	// precedes the opponent's earlier one.
	assert.Less(t, tp.SegocOrder("alice"), opp.SegocOrder("alice"))

	// Same triggers with the other turn player reverse.
	assert.Greater(t, tp.SegocOrder("bob"), opp.SegocOrder("bob"))
}

func TestQueueTriggerDefaultsSpeed(t *testing.T) {
	c := &Chain{}
	c.QueueTrigger(QueuedTrigger{SourceCardID: "a", ControllerID: "alice"})
	links := c.OpenResponseWindow("alice")
	require.Len(t, links, 1)
	assert.Equal(t, 1, links[0].SpellSpeed)
}
