package subscription

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ProrationInput holds everything needed to price a mid-cycle plan switch.
type ProrationInput struct {
	CurrentPrice decimal.Decimal
	NewPrice     decimal.Decimal
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Now          time.Time
}

// Proration is the outcome of a mid-cycle plan switch.
// All amounts are rounded to two decimal places and never negative. NetCharge
// is rounded from the exact difference, so it can differ by a cent from
// Charge minus Credit.
type Proration struct {
	DaysRemaining int             `json:"days_remaining"`
	TotalDays     int             `json:"total_days"`
	Ratio         decimal.Decimal `json:"ratio"`
	Credit        decimal.Decimal `json:"credit"`
	Charge        decimal.Decimal `json:"charge"`
	NetCharge     decimal.Decimal `json:"net_charge"`
}

// CalculateProration credits the unused part of the current price and charges
// the same share of the new price. Partial days count as whole days.
func CalculateProration(in ProrationInput) Proration {
	daysRemaining := ceilDays(in.PeriodEnd.Sub(in.Now))
	totalDays := ceilDays(in.PeriodEnd.Sub(in.PeriodStart))

	ratio := decimal.Zero
	if totalDays > 0 {
		ratio = decimal.NewFromInt(int64(daysRemaining)).Div(decimal.NewFromInt(int64(totalDays)))
	}
	ratio = clampRatio(ratio)

	credit := in.CurrentPrice.Mul(ratio)
	charge := in.NewPrice.Mul(ratio)
	net := decimal.Max(decimal.Zero, charge.Sub(credit)).Round(2)

	return Proration{
		DaysRemaining: max(daysRemaining, 0),
		TotalDays:     max(totalDays, 0),
		Ratio:         ratio,
		Credit:        decimal.Max(decimal.Zero, credit.Round(2)),
		Charge:        decimal.Max(decimal.Zero, charge.Round(2)),
		NetCharge:     net,
	}
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(d.Hours() / 24))
}

func clampRatio(r decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if r.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if r.GreaterThan(one) {
		return one
	}
	return r
}
