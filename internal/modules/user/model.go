// README: User profile entity; the balance columns are owned by the ledger module.
package user

import (
	"time"

	"github.com/shopspring/decimal"

	"urbanride/internal/types"
)

type Profile struct {
	ID             types.ID
	Name           string
	Email          string
	Role           types.Role
	CarModel       *string
	LicensePlate   *string
	PrepaidCredits decimal.Decimal
	PayableBalance decimal.Decimal
	CreatedAt      time.Time
}

// Changes holds the profile fields a user may edit; nil means unchanged.
type Changes struct {
	Name         *string
	CarModel     *string
	LicensePlate *string
}

func (c Changes) Empty() bool {
	return c.Name == nil && c.CarModel == nil && c.LicensePlate == nil
}
