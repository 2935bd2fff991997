package game

import (
	"fmt"
	"time"

	"github.com/nexusduel/duel-server-go/internal/game/rules"
)

// timeNow is replaceable in tests.
var timeNow = time.Now

// RecordHeartbeat stores a fresh heartbeat timestamp for the player's
// side. A disconnect timer targeting that side is cleared: the side
// came back before the grace period expired.
func (m *Match) RecordHeartbeat(playerID string, at time.Time) {
	switch playerID {
	case m.HostID:
		m.Disconnect.HostLastHeartbeat = &at
	case m.OpponentID:
		m.Disconnect.OpponentLastHeartbeat = &at
	default:
		return
	}
	if t := m.Disconnect.Timer; t != nil && t.TargetPlayerID == playerID {
		m.ClearDisconnectTimer("heartbeat received")
	}
}

// HeartbeatOf returns the side's last heartbeat, nil if never sent.
func (m *Match) HeartbeatOf(playerID string) *time.Time {
	switch playerID {
	case m.HostID:
		return m.Disconnect.HostLastHeartbeat
	case m.OpponentID:
		return m.Disconnect.OpponentLastHeartbeat
	}
	return nil
}

// StartDisconnectTimer starts the grace period against one side. At
// most one timer runs per match: starting against a new target while a
// timer is running retargets it instead.
func (m *Match) StartDisconnectTimer(targetPlayerID string, at time.Time) {
	if t := m.Disconnect.Timer; t != nil {
		if t.TargetPlayerID == targetPlayerID {
			return
		}
		m.Disconnect.Timer = &DisconnectTimer{StartedAt: at, TargetPlayerID: targetPlayerID}
		m.appendEvent(rules.EventDisconnectTimerRetargeted, targetPlayerID,
			fmt.Sprintf("Disconnect timer retargeted to %s", targetPlayerID), nil)
		return
	}
	m.Disconnect.Timer = &DisconnectTimer{StartedAt: at, TargetPlayerID: targetPlayerID}
	m.appendEvent(rules.EventDisconnectTimerStarted, targetPlayerID,
		fmt.Sprintf("Disconnect timer started against %s", targetPlayerID), nil)
}

// ClearDisconnectTimer removes the running timer, if any.
func (m *Match) ClearDisconnectTimer(reason string) {
	if m.Disconnect.Timer == nil {
		return
	}
	target := m.Disconnect.Timer.TargetPlayerID
	m.Disconnect.Timer = nil
	m.appendEvent(rules.EventDisconnectTimerCleared, target,
		fmt.Sprintf("Disconnect timer cleared: %s", reason), nil)
}
