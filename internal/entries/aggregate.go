package entries

import (
	"math"
	"slices"
	"strings"
)

// Totals sums the nutrition values of a set of entries.
type Totals struct {
	Calories   int
	Protein    float64
	Carbs      float64
	Fat        float64
	Fiber      float64
	EntryCount int
}

// SumTotals adds up the entries. Non-finite values count as zero.
func SumTotals(entries []Entry) Totals {
	totals := Totals{EntryCount: len(entries)}
	for _, entry := range entries {
		totals.Calories += entry.Nutrition.Calories
		totals.Protein += finiteOrZero(entry.Nutrition.Protein)
		totals.Carbs += finiteOrZero(entry.Nutrition.Carbs)
		totals.Fat += finiteOrZero(entry.Nutrition.Fat)
		totals.Fiber += finiteOrZero(entry.Nutrition.Fiber)
	}
	return totals
}

// SortNewestFirst orders entries by LoggedAt descending, breaking ties by id descending.
func SortNewestFirst(entries []Entry) {
	slices.SortStableFunc(entries, func(left, right Entry) int {
		if byTime := right.LoggedAt.Compare(left.LoggedAt); byTime != 0 {
			return byTime
		}
		return strings.Compare(right.EntryID, left.EntryID)
	})
}

// WeeklyHistory maps each day of a window onto its entries, newest first.
// Every day of the window is present, empty days map to an empty slice.
type WeeklyHistory map[Day][]Entry

// GroupByDate buckets entries into the given days. Entries dated outside the
// days are dropped.
func GroupByDate(entries []Entry, days []Day) WeeklyHistory {
	history := make(WeeklyHistory, len(days))
	for _, day := range days {
		history[day] = []Entry{}
	}
	for _, entry := range entries {
		bucket, ok := history[Day(entry.Date)]
		if !ok {
			continue
		}
		history[Day(entry.Date)] = append(bucket, entry)
	}
	for day := range history {
		SortNewestFirst(history[day])
	}
	return history
}

// Days returns the history's days, newest first.
func (h WeeklyHistory) Days() []Day {
	days := make([]Day, 0, len(h))
	for day := range h {
		days = append(days, day)
	}
	slices.SortFunc(days, func(left, right Day) int {
		return strings.Compare(string(right), string(left))
	})
	return days
}

// Entries flattens the history, newest day first.
func (h WeeklyHistory) Entries() []Entry {
	var flattened []Entry
	for _, day := range h.Days() {
		flattened = append(flattened, h[day]...)
	}
	return flattened
}

// WeeklyStats summarizes a WeeklyHistory for the profile view.
type WeeklyStats struct {
	TotalEntries    int
	TotalCalories   int
	ActiveDays      int
	AverageCalories int
}

// Stats computes the weekly summary. The average is taken over days that have
// at least one entry and rounded to the nearest calorie.
func (h WeeklyHistory) Stats() WeeklyStats {
	var stats WeeklyStats
	for _, dayEntries := range h {
		if len(dayEntries) == 0 {
			continue
		}
		stats.ActiveDays++
		totals := SumTotals(dayEntries)
		stats.TotalEntries += totals.EntryCount
		stats.TotalCalories += totals.Calories
	}
	if stats.ActiveDays > 0 {
		stats.AverageCalories = int(math.Round(float64(stats.TotalCalories) / float64(stats.ActiveDays)))
	}
	return stats
}

func finiteOrZero(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}
