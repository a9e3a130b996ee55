// README: Platform fee policy definitions.
package pricing

import "github.com/shopspring/decimal"

// DefaultRate is the platform's share of every ride price.
var DefaultRate = decimal.RequireFromString("0.10")

// Split is how one ride price divides between platform and driver.
type Split struct {
	Gross decimal.Decimal
	Fee   decimal.Decimal
	Net   decimal.Decimal
}
