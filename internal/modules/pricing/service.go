// README: Pricing service computes the platform fee charged to drivers.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"urbanride/internal/types"
)

type Service struct {
	rate decimal.Decimal
}

func NewService(rate decimal.Decimal) (*Service, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee rate must be in [0, 1), got %s", rate)
	}
	return &Service{rate: rate}, nil
}

func (s *Service) Rate() decimal.Decimal {
	return s.rate
}

// Fee is price * rate rounded to cents.
func (s *Service) Fee(price decimal.Decimal) decimal.Decimal {
	return types.RoundMoney(price.Mul(s.rate))
}

func (s *Service) Split(price decimal.Decimal) Split {
	gross := types.RoundMoney(price)
	fee := s.Fee(gross)
	return Split{Gross: gross, Fee: fee, Net: gross.Sub(fee)}
}
