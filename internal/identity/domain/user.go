package domain

import (
	"errors"

	"github.com/google/uuid"

	sharedDomain "github.com/iahome/platform/internal/shared/domain"
)

// ErrInsufficientTokens indicates the account balance cannot cover a debit.
var ErrInsufficientTokens = errors.New("insufficient token balance")

// ErrUserNotFound indicates the user does not exist.
var ErrUserNotFound = errors.New("user not found")

// User represents a platform account with a token balance.
type User struct {
	sharedDomain.BaseAggregateRoot
	email   Email
	name    Name
	role    Role
	balance int
}

// NewUser creates a new user with the given email and name.
func NewUser(email Email, name Name) *User {
	u := &User{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		email:             email,
		name:              name,
		role:              RoleUser,
	}
	u.AddDomainEvent(NewUserCreated(u.ID(), email.String(), name.String()))
	return u
}

// RehydrateUser recreates a user from persisted state.
func RehydrateUser(id uuid.UUID, email Email, name Name, role Role, balance int, entity sharedDomain.BaseEntity) *User {
	return &User{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity),
		email:             email,
		name:              name,
		role:              role,
		balance:           balance,
	}
}

func (u *User) Email() Email      { return u.email }
func (u *User) Name() Name        { return u.name }
func (u *User) Role() Role        { return u.role }
func (u *User) TokenBalance() int { return u.balance }

// UpdateName changes the user's display name.
func (u *User) UpdateName(name Name) {
	if u.name.Equals(name) {
		return
	}
	u.name = name
	u.Touch()
}

// Promote grants the admin role.
func (u *User) Promote() {
	u.role = RoleAdmin
	u.Touch()
}

// Credit adds tokens to the balance.
func (u *User) Credit(amount int) {
	if amount <= 0 {
		return
	}
	u.balance += amount
	u.Touch()
	u.AddDomainEvent(NewTokensCredited(u.ID(), amount, u.balance))
}

// Debit removes tokens from the balance. Fails without mutating when the
// balance cannot cover the amount.
func (u *User) Debit(amount int) error {
	if amount < 0 {
		return ErrInsufficientTokens
	}
	if u.balance < amount {
		return ErrInsufficientTokens
	}
	u.balance -= amount
	u.Touch()
	u.AddDomainEvent(NewTokensDebited(u.ID(), amount, u.balance))
	return nil
}
