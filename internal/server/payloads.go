package server

import (
	"math"
	"time"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/inference"
)

// nutritionPayload is the body of create and update. Numeric fields follow the
// model reply rules: numeric strings are read, null and garbage become 0.
type nutritionPayload struct {
	FoodName    string                   `json:"foodName"`
	Calories    inference.FlexibleNumber `json:"calories"`
	Protein     inference.FlexibleNumber `json:"protein"`
	Carbs       inference.FlexibleNumber `json:"carbs"`
	Fat         inference.FlexibleNumber `json:"fat"`
	Fiber       inference.FlexibleNumber `json:"fiber"`
	ServingSize string                   `json:"servingSize"`
	Confidence  inference.FlexibleNumber `json:"confidence"`
	PhotoURL    string                   `json:"photoUrl"`
}

func (p nutritionPayload) toNutrition() entries.Nutrition {
	return entries.Nutrition{
		FoodName:    p.FoodName,
		Calories:    int(math.Round(float64(p.Calories))),
		Protein:     float64(p.Protein),
		Carbs:       float64(p.Carbs),
		Fat:         float64(p.Fat),
		Fiber:       float64(p.Fiber),
		ServingSize: p.ServingSize,
		Confidence:  float64(p.Confidence),
		PhotoURL:    p.PhotoURL,
	}
}

type entryPayload struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Date        string    `json:"date"`
	Timestamp   time.Time `json:"timestamp"`
	FoodName    string    `json:"foodName"`
	Calories    int       `json:"calories"`
	Protein     float64   `json:"protein"`
	Carbs       float64   `json:"carbs"`
	Fat         float64   `json:"fat"`
	Fiber       float64   `json:"fiber"`
	ServingSize string    `json:"servingSize"`
	Confidence  float64   `json:"confidence"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
}

func newEntryPayload(entry entries.Entry) entryPayload {
	n := entry.Nutrition
	return entryPayload{
		ID:          entry.EntryID,
		UserID:      entry.UserID,
		Date:        entry.Date,
		Timestamp:   entry.LoggedAt.UTC(),
		FoodName:    n.FoodName,
		Calories:    n.Calories,
		Protein:     n.Protein,
		Carbs:       n.Carbs,
		Fat:         n.Fat,
		Fiber:       n.Fiber,
		ServingSize: n.ServingSize,
		Confidence:  n.Confidence,
		PhotoURL:    n.PhotoURL,
	}
}

func newEntryPayloads(list []entries.Entry) []entryPayload {
	payloads := make([]entryPayload, 0, len(list))
	for _, entry := range list {
		payloads = append(payloads, newEntryPayload(entry))
	}
	return payloads
}

type totalsPayload struct {
	Calories   int     `json:"calories"`
	Protein    float64 `json:"protein"`
	Carbs      float64 `json:"carbs"`
	Fat        float64 `json:"fat"`
	Fiber      float64 `json:"fiber"`
	EntryCount int     `json:"entryCount"`
}

func newTotalsPayload(totals entries.Totals) totalsPayload {
	return totalsPayload{
		Calories:   totals.Calories,
		Protein:    totals.Protein,
		Carbs:      totals.Carbs,
		Fat:        totals.Fat,
		Fiber:      totals.Fiber,
		EntryCount: totals.EntryCount,
	}
}

type dayPayload struct {
	Date    string         `json:"date"`
	Totals  totalsPayload  `json:"totals"`
	Entries []entryPayload `json:"entries"`
}

type weekPayload struct {
	Days []dayPayload `json:"days"`
}

func newWeekPayload(history entries.WeeklyHistory) weekPayload {
	days := history.Days()
	payload := weekPayload{Days: make([]dayPayload, 0, len(days))}
	for _, day := range days {
		dayEntries := history[day]
		payload.Days = append(payload.Days, dayPayload{
			Date:    day.String(),
			Totals:  newTotalsPayload(entries.SumTotals(dayEntries)),
			Entries: newEntryPayloads(dayEntries),
		})
	}
	return payload
}

type weekStatsPayload struct {
	TotalEntries    int `json:"totalEntries"`
	TotalCalories   int `json:"totalCalories"`
	ActiveDays      int `json:"activeDays"`
	AverageCalories int `json:"averageCalories"`
}

func newWeekStatsPayload(stats entries.WeeklyStats) weekStatsPayload {
	return weekStatsPayload{
		TotalEntries:    stats.TotalEntries,
		TotalCalories:   stats.TotalCalories,
		ActiveDays:      stats.ActiveDays,
		AverageCalories: stats.AverageCalories,
	}
}

type overviewPayload struct {
	Date        string           `json:"date"`
	Today       []entryPayload   `json:"today"`
	TodayTotals totalsPayload    `json:"todayTotals"`
	Week        weekPayload      `json:"week"`
	WeekStats   weekStatsPayload `json:"weekStats"`
}

type estimatePayload struct {
	FoodName    string  `json:"foodName"`
	Calories    int     `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fat         float64 `json:"fat"`
	Fiber       float64 `json:"fiber"`
	ServingSize string  `json:"servingSize"`
	Confidence  float64 `json:"confidence"`
	PhotoURL    string  `json:"photoUrl,omitempty"`
}

func newEstimatePayload(estimate inference.Estimate, photoURL string) estimatePayload {
	return estimatePayload{
		FoodName:    estimate.FoodName,
		Calories:    estimate.Calories,
		Protein:     estimate.Protein,
		Carbs:       estimate.Carbs,
		Fat:         estimate.Fat,
		Fiber:       estimate.Fiber,
		ServingSize: estimate.ServingSize,
		Confidence:  estimate.Confidence,
		PhotoURL:    photoURL,
	}
}
