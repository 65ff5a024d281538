package subscription_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/subscription"
)

func TestCalculateProration(t *testing.T) {
	t.Parallel()

	t.Run("half period remaining", func(t *testing.T) {
		t.Parallel()

		p := subscription.CalculateProration(subscription.ProrationInput{
			CurrentPrice: decimal.RequireFromString("10"),
			NewPrice:     decimal.RequireFromString("30"),
			PeriodStart:  periodStart,
			PeriodEnd:    periodEnd,
			Now:          midPeriod,
		})

		assert.Equal(t, 15, p.DaysRemaining)
		assert.Equal(t, 30, p.TotalDays)
		assert.True(t, p.Ratio.Equal(decimal.RequireFromString("0.5")), p.Ratio.String())
		assert.True(t, p.Credit.Equal(decimal.RequireFromString("5")), p.Credit.String())
		assert.True(t, p.Charge.Equal(decimal.RequireFromString("15")), p.Charge.String())
		assert.True(t, p.NetCharge.Equal(decimal.RequireFromString("10")), p.NetCharge.String())
	})

	t.Run("partial day counts as whole day", func(t *testing.T) {
		t.Parallel()

		p := subscription.CalculateProration(subscription.ProrationInput{
			CurrentPrice: decimal.Zero,
			NewPrice:     decimal.RequireFromString("30"),
			PeriodStart:  periodStart,
			PeriodEnd:    periodEnd,
			Now:          periodEnd.Add(-time.Hour),
		})

		assert.Equal(t, 1, p.DaysRemaining)
		assert.True(t, p.NetCharge.Equal(decimal.RequireFromString("1")), p.NetCharge.String())
	})

	t.Run("amounts rounded to cents", func(t *testing.T) {
		t.Parallel()

		p := subscription.CalculateProration(subscription.ProrationInput{
			CurrentPrice: decimal.RequireFromString("10"),
			NewPrice:     decimal.RequireFromString("20"),
			PeriodStart:  periodStart,
			PeriodEnd:    periodStart.AddDate(0, 0, 3),
			Now:          periodStart.AddDate(0, 0, 2),
		})

		assert.True(t, p.Credit.Equal(decimal.RequireFromString("3.33")), p.Credit.String())
		assert.True(t, p.Charge.Equal(decimal.RequireFromString("6.67")), p.Charge.String())
		assert.True(t, p.NetCharge.Equal(decimal.RequireFromString("3.33")), p.NetCharge.String())
	})

	t.Run("net charge rounds the exact difference", func(t *testing.T) {
		t.Parallel()

		p := subscription.CalculateProration(subscription.ProrationInput{
			CurrentPrice: decimal.RequireFromString("10"),
			NewPrice:     decimal.RequireFromString("20"),
			PeriodStart:  periodStart,
			PeriodEnd:    periodEnd,
			Now:          periodEnd.AddDate(0, 0, -10),
		})

		assert.Equal(t, 10, p.DaysRemaining)
		assert.Equal(t, 30, p.TotalDays)
		assert.True(t, p.NetCharge.Equal(decimal.RequireFromString("3.33")), p.NetCharge.String())
	})

	t.Run("net charge matches the rounded price difference", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			current, next string
			remaining     int
			total         int
		}{
			{"10", "20", 1, 3},
			{"10", "20", 2, 3},
			{"10", "20", 10, 30},
			{"9.99", "29.99", 7, 31},
			{"4.99", "19.99", 13, 28},
			{"0", "99", 11, 365},
			{"15.50", "15.51", 1, 30},
			{"29.99", "30", 29, 30},
			{"20", "10", 15, 30},
		}

		for _, tc := range cases {
			start := periodStart
			end := start.AddDate(0, 0, tc.total)
			p := subscription.CalculateProration(subscription.ProrationInput{
				CurrentPrice: decimal.RequireFromString(tc.current),
				NewPrice:     decimal.RequireFromString(tc.next),
				PeriodStart:  start,
				PeriodEnd:    end,
				Now:          end.AddDate(0, 0, -tc.remaining),
			})

			diff := decimal.RequireFromString(tc.next).Sub(decimal.RequireFromString(tc.current))
			want := decimal.Max(decimal.Zero, diff.Mul(p.Ratio)).Round(2)
			assert.True(t, p.NetCharge.Equal(want), "%s -> %s at %d/%d: got %s, want %s",
				tc.current, tc.next, tc.remaining, tc.total, p.NetCharge, want)
			assert.False(t, p.NetCharge.IsNegative())
			assert.True(t, p.NetCharge.Equal(p.NetCharge.Round(2)))

			// Display amounts may drift from the net by at most one cent.
			drift := p.Charge.Sub(p.Credit).Sub(p.NetCharge).Abs()
			if diff.IsPositive() {
				assert.True(t, drift.LessThanOrEqual(decimal.RequireFromString("0.01")), drift.String())
			}
		}
	})

	t.Run("now before period start clamps ratio to one", func(t *testing.T) {
		t.Parallel()

		p := subscription.CalculateProration(subscription.ProrationInput{
			CurrentPrice: decimal.RequireFromString("10"),
			NewPrice:     decimal.RequireFromString("30"),
			PeriodStart:  periodStart,
			PeriodEnd:    periodEnd,
			Now:          periodStart.AddDate(0, 0, -10),
		})

		assert.True(t, p.Ratio.Equal(decimal.NewFromInt(1)))
		assert.True(t, p.NetCharge.Equal(decimal.RequireFromString("20")))
	})

	t.Run("now after period end charges nothing", func(t *testing.T) {
		t.Parallel()

		p := subscription.CalculateProration(subscription.ProrationInput{
			CurrentPrice: decimal.RequireFromString("10"),
			NewPrice:     decimal.RequireFromString("30"),
			PeriodStart:  periodStart,
			PeriodEnd:    periodEnd,
			Now:          periodEnd.AddDate(0, 0, 5),
		})

		assert.Equal(t, 0, p.DaysRemaining)
		assert.True(t, p.Ratio.IsZero())
		assert.True(t, p.NetCharge.IsZero())
	})

	t.Run("zero length period", func(t *testing.T) {
		t.Parallel()

		p := subscription.CalculateProration(subscription.ProrationInput{
			CurrentPrice: decimal.RequireFromString("10"),
			NewPrice:     decimal.RequireFromString("30"),
			PeriodStart:  periodStart,
			PeriodEnd:    periodStart,
			Now:          periodStart,
		})

		assert.True(t, p.Ratio.IsZero())
		assert.True(t, p.NetCharge.IsZero())
	})

	t.Run("cheaper target never yields a negative charge", func(t *testing.T) {
		t.Parallel()

		p := subscription.CalculateProration(subscription.ProrationInput{
			CurrentPrice: decimal.RequireFromString("30"),
			NewPrice:     decimal.RequireFromString("10"),
			PeriodStart:  periodStart,
			PeriodEnd:    periodEnd,
			Now:          midPeriod,
		})

		assert.True(t, p.NetCharge.IsZero())
		assert.False(t, p.Credit.IsNegative())
		assert.False(t, p.Charge.IsNegative())
	})
}
