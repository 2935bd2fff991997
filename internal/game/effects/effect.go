package effects

// Type enumerates the effect kinds the executor can dispatch. An empty
// type marks a passive entry that only carries a protection payload.
type Type string

const (
	TypeDraw           Type = "draw"
	TypeDamage         Type = "damage"
	TypeHeal           Type = "heal"
	TypeDestroy        Type = "destroy"
	TypeBanish         Type = "banish"
	TypeBounce         Type = "bounce"
	TypeModifyATK      Type = "modify_atk"
	TypeModifyDEF      Type = "modify_def"
	TypeChangePosition Type = "change_position"
	TypeCreateToken    Type = "create_token"
	TypeNegate         Type = "negate"
)

// Trigger names the event that queues an effect onto the chain.
// Effects without a trigger are activated manually.
type Trigger string

const (
	TriggerOnSummon    Trigger = "on_summon"
	TriggerOnDestroyed Trigger = "on_destroyed"
	TriggerOnAttack    Trigger = "on_attack_declared"
	TriggerOnStandby   Trigger = "on_standby"
)

// Protection is the passive payload an effect can grant a card.
type Protection struct {
	CannotBeTargeted          bool `json:"cannotBeTargeted,omitempty"`
	CannotBeDestroyedByBattle bool `json:"cannotBeDestroyedByBattle,omitempty"`
	CannotBeDestroyedByEffect bool `json:"cannotBeDestroyedByEffects,omitempty"`
}

// Cost is paid after restriction and target validation, before dispatch.
type Cost struct {
	PayLP   int `json:"payLP,omitempty"`
	Discard int `json:"discard,omitempty"`
}

// TokenSpec describes the monster minted by a create_token effect.
type TokenSpec struct {
	Name string `json:"name"`
	ATK  int    `json:"atk"`
	DEF  int    `json:"def"`
}

// Effect is one entry of a card ability: a shared envelope (trigger,
// cost, protection, once-per-turn flags) around a typed payload. It is
// immutable once authored on a card definition; activations bind
// concrete targets at execution time.
type Effect struct {
	Type        Type        `json:"type,omitempty"`
	Value       int         `json:"value,omitempty"`
	TargetCount int         `json:"targetCount,omitempty"`
	Trigger     Trigger     `json:"trigger,omitempty"`
	Mandatory   bool        `json:"mandatory,omitempty"`
	SpellSpeed  int         `json:"spellSpeed,omitempty"`
	Cost        *Cost       `json:"cost,omitempty"`
	Protection  *Protection `json:"protection,omitempty"`
	Token       *TokenSpec  `json:"token,omitempty"`
	OPT         bool        `json:"isOPT,omitempty"`
	HOPT        bool        `json:"isHOPT,omitempty"`
}

// IsPassive reports whether the entry has no dispatchable payload.
// Passive entries are skipped by multi-part execution and never count
// toward effectsExecuted.
func (e Effect) IsPassive() bool {
	return e.Type == ""
}

// Ability is a card's full effect list, executed in declared order.
type Ability struct {
	Name    string   `json:"name,omitempty"`
	Effects []Effect `json:"effects,omitempty"`
}

// Result reports a single effect execution in-band. Rule violations
// (restriction hit, bad targets, unknown type) come back as
// Success=false with a player-facing message, never as errors.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AbilityResult aggregates a multi-part ability execution. Success is
// true only if at least one contained effect executed; an ability of
// nothing but passive entries reports zero executed and no success,
// which models "nothing actionable happened" rather than an error.
type AbilityResult struct {
	Success         bool     `json:"success"`
	EffectsExecuted int      `json:"effectsExecuted"`
	Messages        []string `json:"messages"`
}
