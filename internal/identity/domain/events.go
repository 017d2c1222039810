package domain

import (
	"github.com/google/uuid"

	sharedDomain "github.com/iahome/platform/internal/shared/domain"
)

const (
	AggregateType = "User"

	RoutingKeyUserCreated    = "identity.user.created"
	RoutingKeyTokensCredited = "identity.tokens.credited"
	RoutingKeyTokensDebited  = "identity.tokens.debited"
)

// UserCreated is emitted when a new user is created.
type UserCreated struct {
	sharedDomain.BaseEvent
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NewUserCreated creates a UserCreated event.
func NewUserCreated(userID uuid.UUID, email, name string) UserCreated {
	return UserCreated{
		BaseEvent: sharedDomain.NewBaseEvent(userID, AggregateType, RoutingKeyUserCreated),
		Email:     email,
		Name:      name,
	}
}

// TokensCredited is emitted when tokens are added to a balance.
type TokensCredited struct {
	sharedDomain.BaseEvent
	Amount  int `json:"amount"`
	Balance int `json:"balance"`
}

// NewTokensCredited creates a TokensCredited event.
func NewTokensCredited(userID uuid.UUID, amount, balance int) TokensCredited {
	return TokensCredited{
		BaseEvent: sharedDomain.NewBaseEvent(userID, AggregateType, RoutingKeyTokensCredited),
		Amount:    amount,
		Balance:   balance,
	}
}

// TokensDebited is emitted when tokens are removed from a balance.
type TokensDebited struct {
	sharedDomain.BaseEvent
	Amount  int `json:"amount"`
	Balance int `json:"balance"`
}

// NewTokensDebited creates a TokensDebited event.
func NewTokensDebited(userID uuid.UUID, amount, balance int) TokensDebited {
	return TokensDebited{
		BaseEvent: sharedDomain.NewBaseEvent(userID, AggregateType, RoutingKeyTokensDebited),
		Amount:    amount,
		Balance:   balance,
	}
}
