package scheduler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/scheduler"
)

func TestSchedules(t *testing.T) {
	t.Parallel()

	from := time.Date(2025, 5, 10, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule scheduler.Schedule
		want     time.Time
		str      string
	}{
		{"every hour", scheduler.Every(time.Hour), from.Add(time.Hour), "every 1h0m0s"},
		{"hourly later this hour", scheduler.HourlyAt(45), time.Date(2025, 5, 10, 14, 45, 0, 0, time.UTC), "hourly at :45"},
		{"hourly next hour", scheduler.HourlyAt(30), time.Date(2025, 5, 10, 15, 30, 0, 0, time.UTC), "hourly at :30"},
		{"daily later today", scheduler.DailyAt(18, 0), time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC), "daily at 18:00"},
		{"daily tomorrow", scheduler.DailyAt(3, 15), time.Date(2025, 5, 11, 3, 15, 0, 0, time.UTC), "daily at 03:15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.schedule.Next(from))
			assert.Equal(t, tt.str, tt.schedule.String())
		})
	}
}

func TestEvery_PanicsOnNonPositive(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { scheduler.Every(0) })
}
