package game

import (
	"fmt"

	"github.com/nexusduel/duel-server-go/internal/game/rules"
)

// PendingBattle records an attack between declaration and the damage
// step. The defender's monster count at declaration time is the
// baseline for replay detection: effects that add or remove defending
// monsters during the response window re-open target choice.
type PendingBattle struct {
	AttackerID        string `json:"attackerId"`
	TargetID          string `json:"targetId,omitempty"`
	AttackingPlayerID string `json:"attackingPlayerId"`
	DefendingPlayerID string `json:"defendingPlayerId"`

	DefenderMonsterCount int  `json:"defenderMonsterCount"`
	ReplayPending        bool `json:"replayPending"`
}

// DeclareAttack starts an attack during the battle phase. An empty
// targetID declares a direct attack, which is only legal against an
// empty board.
func (m *Match) DeclareAttack(playerID, attackerID, targetID string) error {
	if !m.IsActive() {
		return ErrMatchFinished
	}
	if !m.Turn.IsTurnPlayer(playerID) {
		return ErrNotYourTurn
	}
	if m.Turn.CurrentPhase() != rules.PhaseBattle {
		return fmt.Errorf("%w: cannot attack during %s", ErrWrongPhase, m.Turn.CurrentPhase())
	}
	if m.Battle != nil {
		return fmt.Errorf("attack already in progress")
	}

	side, _ := m.SideOf(playerID)
	attacker, _, found := m.findCard(attackerID)
	if !found || !containsInstance(side.MonsterZones, attackerID) {
		return ErrCardNotFound
	}
	if attacker.Position != PositionAttack {
		return fmt.Errorf("%s is not in attack position", attacker.Name)
	}

	defenderID := m.OpponentOf(playerID)
	defender, _ := m.SideOf(defenderID)

	if targetID == "" {
		if len(defender.MonsterZones) > 0 {
			return fmt.Errorf("cannot attack directly while the opponent controls monsters")
		}
	} else if !containsInstance(defender.MonsterZones, targetID) {
		return ErrCardNotFound
	}

	m.Battle = &PendingBattle{
		AttackerID:           attackerID,
		TargetID:             targetID,
		AttackingPlayerID:    playerID,
		DefendingPlayerID:    defenderID,
		DefenderMonsterCount: len(defender.MonsterZones),
	}
	m.appendEvent(rules.EventAttackDeclared, playerID, fmt.Sprintf("%s declared an attack", attacker.Name), map[string]string{
		"attackerId": attackerID,
		"targetId":   targetID,
	})
	return nil
}

// CheckBattleReplay re-examines the defender's board before damage.
// If the monster count changed since declaration and the original
// target is gone, a replay is pending: the attacker must choose a new
// target (or attack directly against an empty board) before damage.
func (m *Match) CheckBattleReplay() bool {
	if m.Battle == nil || m.Battle.ReplayPending {
		return m.Battle != nil && m.Battle.ReplayPending
	}
	defender, _ := m.SideOf(m.Battle.DefendingPlayerID)
	if len(defender.MonsterZones) == m.Battle.DefenderMonsterCount {
		return false
	}
	if m.Battle.TargetID != "" && containsInstance(defender.MonsterZones, m.Battle.TargetID) {
		return false
	}
	m.Battle.ReplayPending = true
	m.appendEvent(rules.EventBattleReplay, m.Battle.AttackingPlayerID, "Battle replay: attack target choice re-opened", nil)
	return true
}

// ChooseReplacementTarget answers a pending replay. An empty target
// attacks directly, legal only if the defender's board is now empty.
func (m *Match) ChooseReplacementTarget(playerID, targetID string) error {
	if m.Battle == nil {
		return ErrNoPendingBattle
	}
	if !m.Battle.ReplayPending {
		return fmt.Errorf("no battle replay is pending")
	}
	if playerID != m.Battle.AttackingPlayerID {
		return ErrNotYourTurn
	}

	defender, _ := m.SideOf(m.Battle.DefendingPlayerID)
	if targetID == "" {
		if len(defender.MonsterZones) > 0 {
			return fmt.Errorf("cannot attack directly while the opponent controls monsters")
		}
	} else if !containsInstance(defender.MonsterZones, targetID) {
		return ErrCardNotFound
	}

	m.Battle.TargetID = targetID
	m.Battle.DefenderMonsterCount = len(defender.MonsterZones)
	m.Battle.ReplayPending = false
	return nil
}

// CancelAttack withdraws a pending attack, which is also the
// attacker's option on a replay.
func (m *Match) CancelAttack(playerID string) error {
	if m.Battle == nil {
		return ErrNoPendingBattle
	}
	if playerID != m.Battle.AttackingPlayerID {
		return ErrNotYourTurn
	}
	m.Battle = nil
	return nil
}

// ResolveBattleDamage applies the damage step of the pending attack.
// A pending replay must be answered first. The attacker may have been
// removed during the response window, in which case the attack fizzles.
func (m *Match) ResolveBattleDamage() (string, error) {
	if m.Battle == nil {
		return "", ErrNoPendingBattle
	}
	if m.CheckBattleReplay() {
		return "", ErrReplayPending
	}
	battle := m.Battle
	m.Battle = nil

	attackerSide, _ := m.SideOf(battle.AttackingPlayerID)
	if !containsInstance(attackerSide.MonsterZones, battle.AttackerID) {
		return "attack fizzled: attacker left the field", nil
	}
	attacker, _, _ := m.findCard(battle.AttackerID)

	if battle.TargetID == "" {
		m.DealDamage(battle.DefendingPlayerID, attacker.ATK)
		msg := fmt.Sprintf("%s attacked directly for %d damage", attacker.Name, attacker.ATK)
		m.appendEvent(rules.EventBattleDamage, battle.AttackingPlayerID, msg, nil)
		return msg, nil
	}

	target, _, found := m.findCard(battle.TargetID)
	if !found {
		return "attack fizzled: target left the field", nil
	}

	var msg string
	if target.Position == PositionDefense {
		if attacker.ATK > target.DEF {
			m.destroyByBattle(battle.TargetID)
			msg = fmt.Sprintf("%s destroyed %s", attacker.Name, target.Name)
		} else if attacker.ATK < target.DEF {
			m.DealDamage(battle.AttackingPlayerID, target.DEF-attacker.ATK)
			msg = fmt.Sprintf("%s failed to break through %s", attacker.Name, target.Name)
		} else {
			msg = fmt.Sprintf("%s and %s clashed with no result", attacker.Name, target.Name)
		}
	} else {
		switch {
		case attacker.ATK > target.ATK:
			diff := attacker.ATK - target.ATK
			m.destroyByBattle(battle.TargetID)
			m.DealDamage(battle.DefendingPlayerID, diff)
			msg = fmt.Sprintf("%s destroyed %s for %d damage", attacker.Name, target.Name, diff)
		case attacker.ATK < target.ATK:
			diff := target.ATK - attacker.ATK
			m.destroyByBattle(battle.AttackerID)
			m.DealDamage(battle.AttackingPlayerID, diff)
			msg = fmt.Sprintf("%s was destroyed by %s for %d damage", attacker.Name, target.Name, diff)
		default:
			m.destroyByBattle(battle.AttackerID)
			m.destroyByBattle(battle.TargetID)
			msg = fmt.Sprintf("%s and %s destroyed each other", attacker.Name, target.Name)
		}
	}
	m.appendEvent(rules.EventBattleDamage, battle.AttackingPlayerID, msg, nil)
	return msg, nil
}

func containsInstance(zone []Card, instanceID string) bool {
	for _, card := range zone {
		if card.InstanceID == instanceID {
			return true
		}
	}
	return false
}
