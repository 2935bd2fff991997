package targeting

import "fmt"

// TargetCardInfo provides the card facts needed for target validation.
type TargetCardInfo struct {
	ID               string
	Name             string
	ControllerID     string
	FaceUp           bool
	CannotBeTargeted bool
}

// GameStateAccessor provides access to game state needed for target
// validation. The match aggregate implements it.
type GameStateAccessor interface {
	// FindCardForTarget finds a card by instance id in any zone.
	FindCardForTarget(cardID string) (TargetCardInfo, bool)
}

// Validator validates that selected targets are legal for an effect.
type Validator struct {
	gameState GameStateAccessor
}

// NewValidator creates a new target validator.
func NewValidator(gameState GameStateAccessor) *Validator {
	return &Validator{gameState: gameState}
}

// Validate checks a target list against a required count. It enforces,
// in order: targets were supplied at all, every target exists, and no
// target carries the cannot-be-targeted protection. The returned error
// message is shown to the acting player verbatim.
func (v *Validator) Validate(targetIDs []string, required int) error {
	if v == nil || v.gameState == nil {
		return fmt.Errorf("target validator not initialized")
	}
	if required <= 0 {
		return nil
	}
	if len(targetIDs) == 0 {
		return fmt.Errorf("No targets selected")
	}
	if len(targetIDs) > required {
		return fmt.Errorf("Too many targets: effect allows %d", required)
	}

	for _, id := range targetIDs {
		card, ok := v.gameState.FindCardForTarget(id)
		if !ok {
			return fmt.Errorf("Target %s no longer exists", id)
		}
		if card.CannotBeTargeted {
			return fmt.Errorf("%s cannot be targeted", card.Name)
		}
	}
	return nil
}
