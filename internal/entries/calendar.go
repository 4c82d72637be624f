package entries

import "time"

// WeekLength is the number of calendar days in the trailing week view, today included.
const WeekLength = 7

// Calendar maps instants onto local calendar days.
type Calendar struct {
	location *time.Location
	clock    func() time.Time
}

// NewCalendar builds a Calendar for the location. A nil location means time.Local
// and a nil clock means time.Now.
func NewCalendar(location *time.Location, clock func() time.Time) Calendar {
	if location == nil {
		location = time.Local
	}
	if clock == nil {
		clock = time.Now
	}
	return Calendar{location: location, clock: clock}
}

// Now returns the current instant in the calendar's location.
func (c Calendar) Now() time.Time {
	return c.clockOrDefault()().In(c.locationOrDefault())
}

// Location returns the timezone calendar days are computed in.
func (c Calendar) Location() *time.Location {
	return c.locationOrDefault()
}

// Today returns the current local day.
func (c Calendar) Today() Day {
	return c.DayOf(c.Now())
}

// DayOf returns the local day containing the instant.
func (c Calendar) DayOf(instant time.Time) Day {
	return Day(instant.In(c.locationOrDefault()).Format(dayLayout))
}

// TrailingDays returns count days ending today, newest first.
func (c Calendar) TrailingDays(count int) []Day {
	if count <= 0 {
		return nil
	}
	now := c.Now()
	// noon keeps AddDate away from DST transitions at midnight
	anchor := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, now.Location())
	days := make([]Day, 0, count)
	for offset := 0; offset < count; offset++ {
		days = append(days, Day(anchor.AddDate(0, 0, -offset).Format(dayLayout)))
	}
	return days
}

// Week returns the trailing WeekLength days, newest first.
func (c Calendar) Week() []Day {
	return c.TrailingDays(WeekLength)
}

func (c Calendar) locationOrDefault() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func (c Calendar) clockOrDefault() func() time.Time {
	if c.clock == nil {
		return time.Now
	}
	return c.clock
}
