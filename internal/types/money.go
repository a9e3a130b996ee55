// README: Common value objects used across modules (ids, roles, money).
package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

type Role string

const (
	RolePassenger Role = "PASSENGER"
	RoleDriver    Role = "DRIVER"
)

func (r Role) Valid() bool {
	return r == RolePassenger || r == RoleDriver
}

// Identity is the authenticated caller handed to the core by the auth layer.
type Identity struct {
	ID   ID
	Role Role
}

const Currency = "BRL"

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func MustMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
