package domain

import (
	"github.com/google/uuid"

	sharedDomain "github.com/iahome/platform/internal/shared/domain"
)

const (
	AggregateType = "Activation"

	RoutingKeyModuleActivated   = "activation.module.activated"
	RoutingKeyModuleDeactivated = "activation.module.deactivated"
)

// ModuleActivated is emitted when a module is unlocked for a user.
type ModuleActivated struct {
	sharedDomain.BaseEvent
	ModuleID string `json:"module_id"`
	Source   string `json:"source"`
	Cost     int    `json:"cost"`
}

// NewModuleActivated creates a ModuleActivated event.
func NewModuleActivated(userID uuid.UUID, moduleID, source string, cost int) ModuleActivated {
	return ModuleActivated{
		BaseEvent: sharedDomain.NewBaseEvent(userID, AggregateType, RoutingKeyModuleActivated),
		ModuleID:  moduleID,
		Source:    source,
		Cost:      cost,
	}
}

// ModuleDeactivated is emitted when an activation is switched off.
type ModuleDeactivated struct {
	sharedDomain.BaseEvent
	ModuleID string `json:"module_id"`
}

// NewModuleDeactivated creates a ModuleDeactivated event.
func NewModuleDeactivated(userID uuid.UUID, moduleID string) ModuleDeactivated {
	return ModuleDeactivated{
		BaseEvent: sharedDomain.NewBaseEvent(userID, AggregateType, RoutingKeyModuleDeactivated),
		ModuleID:  moduleID,
	}
}
