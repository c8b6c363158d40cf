package settings

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	KeyCommissionPrefix = "commission."
	KeyTipMin           = "tip.min"
	KeyTipMax           = "tip.max"
	KeyTopupMin         = "wallet_topup.min"
	KeyTopupMax         = "wallet_topup.max"
)

// FallbackCommission applies when neither the performer nor the site defines a rate.
var FallbackCommission = decimal.RequireFromString("0.2")

var ErrInvalidSettings = errors.New("invalid_settings")

// Bounds is an inclusive price range. A zero Max means unbounded.
type Bounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

func (b Bounds) Contains(v decimal.Decimal) bool {
	if v.LessThan(b.Min) {
		return false
	}
	if b.Max.IsPositive() && v.GreaterThan(b.Max) {
		return false
	}
	return true
}

// Snapshot is an immutable view of the site settings consumed by settlement.
type Snapshot struct {
	Version     int64
	Commissions map[string]decimal.Decimal
	Tip         Bounds
	WalletTopup Bounds
}

// Commission returns the site default rate for sourceType.
func (s Snapshot) Commission(sourceType string) (decimal.Decimal, bool) {
	rate, ok := s.Commissions[sourceType]
	return rate, ok
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Commissions = make(map[string]decimal.Decimal, len(s.Commissions))
	for k, v := range s.Commissions {
		out.Commissions[k] = v
	}
	return out
}

// apply overlays one key/value pair stored in the settings table.
func (s *Snapshot) apply(key, value string) error {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSettings, key, err)
	}
	switch {
	case len(key) > len(KeyCommissionPrefix) && key[:len(KeyCommissionPrefix)] == KeyCommissionPrefix:
		s.Commissions[key[len(KeyCommissionPrefix):]] = parsed
	case key == KeyTipMin:
		s.Tip.Min = parsed
	case key == KeyTipMax:
		s.Tip.Max = parsed
	case key == KeyTopupMin:
		s.WalletTopup.Min = parsed
	case key == KeyTopupMax:
		s.WalletTopup.Max = parsed
	default:
		return fmt.Errorf("%w: unknown key %s", ErrInvalidSettings, key)
	}
	return nil
}

func validate(s Snapshot) error {
	for source, rate := range s.Commissions {
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: commission %s out of range", ErrInvalidSettings, source)
		}
	}
	if s.Tip.Min.IsNegative() || s.WalletTopup.Min.IsNegative() {
		return fmt.Errorf("%w: negative minimum", ErrInvalidSettings)
	}
	return nil
}
