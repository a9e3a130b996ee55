// README: Ledger entities: per-user balances and the append-only transaction log.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"urbanride/internal/types"
)

type TxType string

const (
	TypeCredit  TxType = "CREDIT"
	TypeFee     TxType = "FEE"
	TypeEarning TxType = "EARNING"
)

type TxStatus string

const (
	StatusPending   TxStatus = "PENDING"
	StatusCompleted TxStatus = "COMPLETED"
)

// Account is the balance pair stored on a user row.
type Account struct {
	UserID         types.ID
	Role           types.Role
	PrepaidCredits decimal.Decimal
	PayableBalance decimal.Decimal
}

// Transaction is one ledger entry. Amount is always positive; the direction
// follows from Type.
type Transaction struct {
	ID          types.ID
	UserID      types.ID
	RideID      *types.ID
	Amount      decimal.Decimal
	Type        TxType
	Description string
	Status      TxStatus
	ExternalRef *string
	CreatedAt   time.Time
}

// Settlement is the outcome of settling one completed ride.
type Settlement struct {
	RideID   types.ID
	DriverID types.ID
	Fee      decimal.Decimal
	Earning  decimal.Decimal
	Net      decimal.Decimal
	Entries  []Transaction
}

const (
	descFee     = "Ride fee"
	descEarning = "Ride completed"
	descCredit  = "Credit recharge"
)
