package scheduler

import (
	"fmt"
	"time"
)

// Schedule yields the next trigger time after from.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type interval time.Duration

func (s interval) Next(from time.Time) time.Time { return from.Add(time.Duration(s)) }

func (s interval) String() string { return fmt.Sprintf("every %v", time.Duration(s)) }

type hourly struct {
	minute int
}

func (s hourly) Next(from time.Time) time.Time {
	next := from.Truncate(time.Hour).Add(time.Duration(s.minute) * time.Minute)
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourly) String() string { return fmt.Sprintf("hourly at :%02d", s.minute) }

type daily struct {
	hour, minute int
}

func (s daily) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s daily) String() string { return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute) }

// Every runs a task at a fixed interval counted from its previous trigger.
// Panics if d is not positive.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		panic("scheduler: interval must be positive")
	}
	return interval(d)
}

// HourlyAt runs a task every hour at the given minute.
func HourlyAt(minute int) Schedule {
	return hourly{minute: minute % 60}
}

// DailyAt runs a task once a day at hour:minute in the location of the clock.
func DailyAt(hour, minute int) Schedule {
	return daily{hour: hour % 24, minute: minute % 60}
}
