package game

import "errors"

// Precondition failures abort the attempted transaction entirely; no
// partial mutation is retained. Rule violations are never modeled as
// errors; those come back in-band as effect results.
var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrMatchFinished    = errors.New("match is finished")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrChainOpen        = errors.New("chain must resolve before advancing")
	ErrCardNotFound     = errors.New("card not found")
	ErrWrongPhase       = errors.New("wrong phase")
	ErrNormalSummonUsed = errors.New("normal summon already used this turn")
	ErrZoneFull         = errors.New("zone is full")
	ErrNoPendingBattle  = errors.New("no attack has been declared")
	ErrReplayPending    = errors.New("battle replay must be answered first")
)
