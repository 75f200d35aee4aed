package preferences

import (
	"slices"

	"github.com/agentstation/labsync/pkg/constants"
	"github.com/agentstation/labsync/pkg/errors"
)

var positions = []string{
	PositionTopRight, PositionTopLeft, PositionBottomRight,
	PositionBottomLeft, PositionTopCenter, PositionBottomCenter,
}

// Validate checks the enumerated and numeric fields of the aggregate.
func (u UserPreferences) Validate() error {
	return u.NotificationSettings.Validate()
}

// Validate checks toast position, toast duration and bell capacity.
func (n NotificationSettings) Validate() error {
	if !slices.Contains(positions, n.Toasts.Position) {
		return errors.NewValidationError("toasts.position", n.Toasts.Position, "unknown position")
	}
	if n.Toasts.Duration <= 0 {
		return errors.NewValidationError("toasts.duration", n.Toasts.Duration, "must be positive")
	}
	if n.Bell.MaxHistory < 1 || n.Bell.MaxHistory > constants.MaxBellCapacity {
		return errors.NewValidationError("bell.max_history", n.Bell.MaxHistory, "out of range")
	}
	return nil
}
