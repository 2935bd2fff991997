package effects

import (
	"fmt"

	"github.com/nexusduel/duel-server-go/internal/game/restriction"
	"github.com/nexusduel/duel-server-go/internal/game/targeting"
)

// Board is the mutable game state surface the executor dispatches
// against. The match aggregate implements it; every method applies its
// change to in-memory state only, persistence is the caller's concern.
type Board interface {
	CurrentTurn() int
	OpponentOf(playerID string) string
	DrawCards(playerID string, count int) int
	DealDamage(playerID string, amount int)
	GainLife(playerID string, amount int)
	PayLife(playerID string, amount int) bool
	DiscardRandom(playerID string, count int) int
	DestroyCard(cardID string) bool
	BanishCard(cardID string) bool
	BounceCard(cardID string) bool
	ModifyStats(cardID string, atkDelta, defDelta int) bool
	ChangePosition(cardID string) bool
	CreateToken(playerID, name string, atk, def int) string
}

// Executor dispatches effect descriptors against a board. Validation
// short-circuits on the first failure, in order: once-per-turn
// restriction, target legality, cost payment, then the typed dispatch.
type Executor struct {
	board        Board
	validator    *targeting.Validator
	restrictions *restriction.Tracker
}

// NewExecutor creates an executor bound to one board and its
// restriction tracker.
func NewExecutor(board Board, validator *targeting.Validator, restrictions *restriction.Tracker) *Executor {
	return &Executor{
		board:        board,
		validator:    validator,
		restrictions: restrictions,
	}
}

// Execute runs a single effect for the acting player. The restriction
// record is written only after the effect succeeds, and only for
// effects flagged OPT/HOPT.
func (x *Executor) Execute(eff Effect, effectIndex int, actingPlayerID, sourceCardID string, targetIDs []string) Result {
	if (eff.OPT || eff.HOPT) && !x.restrictions.CanUse(sourceCardID, effectIndex, actingPlayerID) {
		return Result{Message: "This effect can only be used once per turn"}
	}

	if eff.TargetCount > 0 {
		if err := x.validator.Validate(targetIDs, eff.TargetCount); err != nil {
			return Result{Message: err.Error()}
		}
	}

	if eff.Cost != nil {
		if eff.Cost.PayLP > 0 && !x.board.PayLife(actingPlayerID, eff.Cost.PayLP) {
			return Result{Message: fmt.Sprintf("Cannot pay %d LP cost", eff.Cost.PayLP)}
		}
		if eff.Cost.Discard > 0 {
			if discarded := x.board.DiscardRandom(actingPlayerID, eff.Cost.Discard); discarded < eff.Cost.Discard {
				return Result{Message: fmt.Sprintf("Cannot discard %d card(s) for cost", eff.Cost.Discard)}
			}
		}
	}

	message, ok := x.dispatch(eff, actingPlayerID, targetIDs)
	if !ok {
		return Result{Message: message}
	}

	if eff.OPT || eff.HOPT {
		turn := x.board.CurrentTurn()
		resetOn := 0
		if eff.HOPT {
			// Hard restrictions outlive the normal per-turn reset and
			// expire when the controller's next turn begins.
			resetOn = turn + 2
		}
		x.restrictions.Use(sourceCardID, effectIndex, actingPlayerID, turn, eff.HOPT, resetOn)
	}

	return Result{Success: true, Message: message}
}

// ExecuteAbility runs a multi-part ability in declared order. Passive
// protection-only entries are skipped and not counted; every attempted
// effect contributes its message whether it succeeded or not.
func (x *Executor) ExecuteAbility(ability Ability, actingPlayerID, sourceCardID string, targetIDs []string) AbilityResult {
	result := AbilityResult{Messages: make([]string, 0, len(ability.Effects))}

	for i, eff := range ability.Effects {
		if eff.IsPassive() {
			continue
		}
		res := x.Execute(eff, i, actingPlayerID, sourceCardID, targetIDs)
		result.Messages = append(result.Messages, res.Message)
		if res.Success {
			result.EffectsExecuted++
		}
	}

	result.Success = result.EffectsExecuted > 0
	return result
}

func (x *Executor) dispatch(eff Effect, actingPlayerID string, targetIDs []string) (string, bool) {
	switch eff.Type {
	case TypeDraw:
		count := eff.Value
		if count <= 0 {
			count = 1
		}
		x.board.DrawCards(actingPlayerID, count)
		return fmt.Sprintf("Drew %d card%s", count, plural(count)), true

	case TypeDamage:
		if eff.Value <= 0 {
			return "Damage effect has no value", false
		}
		x.board.DealDamage(x.board.OpponentOf(actingPlayerID), eff.Value)
		return fmt.Sprintf("Dealt %d damage", eff.Value), true

	case TypeHeal:
		if eff.Value <= 0 {
			return "Heal effect has no value", false
		}
		x.board.GainLife(actingPlayerID, eff.Value)
		return fmt.Sprintf("Gained %d LP", eff.Value), true

	case TypeDestroy:
		destroyed := 0
		for _, id := range targetIDs {
			if x.board.DestroyCard(id) {
				destroyed++
			}
		}
		return fmt.Sprintf("Destroyed %d card%s", destroyed, plural(destroyed)), true

	case TypeBanish:
		banished := 0
		for _, id := range targetIDs {
			if x.board.BanishCard(id) {
				banished++
			}
		}
		return fmt.Sprintf("Banished %d card%s", banished, plural(banished)), true

	case TypeBounce:
		bounced := 0
		for _, id := range targetIDs {
			if x.board.BounceCard(id) {
				bounced++
			}
		}
		return fmt.Sprintf("Returned %d card%s to the hand", bounced, plural(bounced)), true

	case TypeModifyATK:
		for _, id := range targetIDs {
			x.board.ModifyStats(id, eff.Value, 0)
		}
		return fmt.Sprintf("Modified ATK by %+d", eff.Value), true

	case TypeModifyDEF:
		for _, id := range targetIDs {
			x.board.ModifyStats(id, 0, eff.Value)
		}
		return fmt.Sprintf("Modified DEF by %+d", eff.Value), true

	case TypeChangePosition:
		changed := 0
		for _, id := range targetIDs {
			if x.board.ChangePosition(id) {
				changed++
			}
		}
		return fmt.Sprintf("Changed battle position of %d card%s", changed, plural(changed)), true

	case TypeCreateToken:
		spec := eff.Token
		if spec == nil {
			return "Token effect has no token definition", false
		}
		if id := x.board.CreateToken(actingPlayerID, spec.Name, spec.ATK, spec.DEF); id == "" {
			return "No free monster zone for token", false
		}
		return fmt.Sprintf("Summoned %s token", spec.Name), true

	case TypeNegate:
		// The chain mutation happens where the link resolves; the
		// executor only accounts for the activation (restriction,
		// cost) and reports it.
		return "Negation resolved", true

	case "":
		return "No actionable effect", false

	default:
		// Typed dispatch is exhaustive for deployed effect kinds; this
		// branch keeps forward compatibility with card data authored
		// against a newer grammar.
		return fmt.Sprintf("Unknown effect type: %s", eff.Type), false
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
