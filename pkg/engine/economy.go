package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Economy holds the monetary policy. Every constant the engine applies to a
// balance comes from here so deployments can tune the economy without code
// changes.
type Economy struct {
	// StarterBalance is granted to every account at signup.
	StarterBalance decimal.Decimal
	// LikePrice is the fixed price of a like.
	LikePrice decimal.Decimal
	// CreatorShare is the fraction of a like/reaction price credited to the
	// author while the author has not cashed out. After the author's first
	// cash-out the share is zero and the platform keeps the full price.
	CreatorShare decimal.Decimal
	// PurchaseCommission is the flat platform commission on emoji purchases.
	PurchaseCommission decimal.Decimal
	// MinCashOutThreshold is the smallest pending-earnings balance that may
	// be cashed out.
	MinCashOutThreshold decimal.Decimal
	// ExchangeRate is the number of currency units per fiat unit.
	ExchangeRate decimal.Decimal
	// DefaultReactionKinds is the owned-reaction set seeded at signup.
	DefaultReactionKinds []string
}

// DefaultEconomy returns the stock CENTxt monetary policy: 100 starter hearts,
// 1-heart likes split 90/10, 10% purchase commission, 100-heart cash-out
// floor at 100 hearts to the fiat unit.
func DefaultEconomy() Economy {
	return Economy{
		StarterBalance:       decimal.NewFromInt(100),
		LikePrice:            decimal.NewFromInt(1),
		CreatorShare:         decimal.RequireFromString("0.90"),
		PurchaseCommission:   decimal.RequireFromString("0.10"),
		MinCashOutThreshold:  decimal.NewFromInt(100),
		ExchangeRate:         decimal.NewFromInt(100),
		DefaultReactionKinds: []string{"heart"},
	}
}

// Validate ensures the policy contains sane values.
func (economy Economy) Validate() error {
	if economy.StarterBalance.Sign() < 0 {
		return fmt.Errorf("%w: starter balance is negative", ErrInvalidEconomy)
	}
	if economy.LikePrice.Sign() <= 0 {
		return fmt.Errorf("%w: like price must be positive", ErrInvalidEconomy)
	}
	if economy.CreatorShare.Sign() < 0 || economy.CreatorShare.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: creator share must be within [0,1]", ErrInvalidEconomy)
	}
	if economy.PurchaseCommission.Sign() < 0 || economy.PurchaseCommission.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: purchase commission must be within [0,1]", ErrInvalidEconomy)
	}
	if economy.MinCashOutThreshold.Sign() <= 0 {
		return fmt.Errorf("%w: cash-out threshold must be positive", ErrInvalidEconomy)
	}
	if economy.ExchangeRate.Sign() <= 0 {
		return fmt.Errorf("%w: exchange rate must be positive", ErrInvalidEconomy)
	}
	return nil
}

// shareFor returns the creator share in force for an author right now. The
// flag is read at grant time on purpose: pre-cash-out credits keep their
// original split forever and post-cash-out actions route everything to the
// platform.
func (economy Economy) shareFor(author Account) decimal.Decimal {
	if author.HasCashedOut {
		return decimal.Zero
	}
	return economy.CreatorShare
}
