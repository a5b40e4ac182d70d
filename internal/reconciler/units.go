package reconciler

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"microloan/internal/domain/loan"
	"microloan/internal/usecase/ledger"
)

// DefaultDecimals matches the 18-decimal native currency.
const DefaultDecimals = 18

var (
	hundred    = decimal.NewFromInt(100)
	secsPerDay = decimal.NewFromInt(ledger.SecondsPerDay)
)

// Units converts between on-ledger integers and display decimals. Nothing
// outside this file converts units.
type Units struct {
	Decimals int32
}

func NewUnits(decimals int32) (Units, error) {
	if decimals < 0 || decimals > 77 {
		return Units{}, fmt.Errorf("decimals %d out of range", decimals)
	}
	return Units{Decimals: decimals}, nil
}

// ToDisplay is exact: a ledger amount never loses digits on the way out.
func (u Units) ToDisplay(a loan.Amount) decimal.Decimal {
	return decimal.NewFromBigInt(a.Big(), -u.Decimals)
}

// FromDisplay rejects inputs with more fractional digits than the currency
// carries instead of rounding them away.
func (u Units) FromDisplay(s string) (loan.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return loan.Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return loan.Amount{}, fmt.Errorf("amount %q: %w", s, loan.ErrInvalidAmount)
	}
	scaled := d.Shift(u.Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return loan.Amount{}, fmt.Errorf("amount %q has more than %d decimals", s, u.Decimals)
	}
	return loan.AmountFromBig(scaled.BigInt())
}

func BPSToPercent(bps uint32) decimal.Decimal {
	return decimal.New(int64(bps), -2)
}

func PercentToBPS(s string) (uint32, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse percent %q: %w", s, err)
	}
	bps := d.Mul(hundred)
	if bps.IsNegative() || !bps.Equal(bps.Truncate(0)) || bps.GreaterThan(decimal.NewFromInt(int64(^uint32(0)))) {
		return 0, fmt.Errorf("percent %q is not a whole number of basis points", s)
	}
	return uint32(bps.IntPart()), nil
}

func SecondsToDays(s uint64) decimal.Decimal {
	return averageSecondsToDays(uintDecimal(s), 1)
}

// averageBPSToPercent is the mean of n rates summed in basis points, as a
// percent rounded to two places. Zero when n is zero.
func averageBPSToPercent(sumBPS decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return sumBPS.DivRound(decimal.NewFromInt(int64(n)).Mul(hundred), 2)
}

// averageSecondsToDays is the mean of n durations summed in seconds, in days
// rounded to two places. Zero when n is zero.
func averageSecondsToDays(sumSecs decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return sumSecs.DivRound(decimal.NewFromInt(int64(n)).Mul(secsPerDay), 2)
}

func uintDecimal(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// unixTime maps the ledger's "0 means unset" timestamps to the zero Time.
func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// percentOf is part/whole*100 rounded to two places; zero when whole is zero.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).DivRound(whole, 2)
}
