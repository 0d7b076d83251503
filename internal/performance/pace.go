package performance

import (
	"math"
	"time"
)

// Shortfall is the remaining gap, never negative.
func Shortfall(target, achieved float64) float64 {
	return math.Max(0, target-achieved)
}

// PerDayRequired is the daily run-rate needed to close shortfall.
func PerDayRequired(shortfall float64, remainingDays int) float64 {
	return math.Ceil(shortfall / float64(max(1, remainingDays)))
}

// RemainingWorkingDays counts the days from today, inclusive, to the end of
// its month, skipping Sundays. The result is at least 1.
func RemainingWorkingDays(today time.Time) int {
	y, m, d := today.Date()
	last := time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
	days := 0
	for day := d; day <= last; day++ {
		if time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Weekday() != time.Sunday {
			days++
		}
	}
	return max(1, days)
}

// remainingDaysInMonth applies RemainingWorkingDays to a reporting month:
// the current month counts from today, a future month from its first day,
// and a finished month has the floor of 1.
func remainingDaysInMonth(month string, now time.Time) int {
	start, err := time.ParseInLocation("2006-01", month, now.Location())
	if err != nil {
		return RemainingWorkingDays(now)
	}
	end := start.AddDate(0, 1, 0)
	switch {
	case !now.Before(end):
		return 1
	case now.Before(start):
		return RemainingWorkingDays(start)
	default:
		return RemainingWorkingDays(now)
	}
}

// Metric is one target/achieved pair with its pace figures.
type Metric struct {
	Target         float64 `json:"target"`
	Achieved       float64 `json:"achieved"`
	Shortfall      float64 `json:"shortfall"`
	PerDayRequired float64 `json:"perDayRequired"`
	AchievementPct float64 `json:"achievementPct"`
}

// NewMetric derives shortfall and pace for a target/achieved pair.
func NewMetric(target, achieved float64, remainingDays int) Metric {
	m := Metric{Target: target, Achieved: achieved}
	m.Shortfall = Shortfall(target, achieved)
	m.PerDayRequired = PerDayRequired(m.Shortfall, remainingDays)
	if target > 0 {
		m.AchievementPct = math.Round(achieved/target*10000) / 100
	}
	return m
}
