package entries

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	maxIdentifierLength = 190
	dayLayout           = "2006-01-02"
)

var (
	// ErrInvalidEntryID indicates that an entry identifier is empty or exceeds storage bounds.
	ErrInvalidEntryID = errors.New("entries: invalid entry id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("entries: invalid user id")
	// ErrInvalidDate indicates that a calendar day is not formatted as YYYY-MM-DD.
	ErrInvalidDate = errors.New("entries: invalid date")
	// ErrInvalidSession indicates that an operation was attempted without an authenticated user.
	ErrInvalidSession = errors.New("entries: session required")
	// ErrEntryNotFound indicates that no entry with the id exists for the session user.
	ErrEntryNotFound = errors.New("entries: entry not found")
)

// EntryID represents a validated entry identifier.
type EntryID string

// NewEntryID validates raw input and returns an EntryID.
func NewEntryID(rawInput string) (EntryID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEntryID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidEntryID, maxIdentifierLength)
	}
	return EntryID(trimmed), nil
}

// String returns the underlying string identifier.
func (id EntryID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Session carries the authenticated user every accessor call is scoped to.
type Session struct {
	userID UserID
}

// NewSession validates the user id and returns a Session bound to it.
func NewSession(rawUserID string) (Session, error) {
	userID, err := NewUserID(rawUserID)
	if err != nil {
		return Session{}, err
	}
	return Session{userID: userID}, nil
}

// UserID returns the user the session belongs to.
func (s Session) UserID() UserID {
	return s.userID
}

func (s Session) valid() bool {
	return s.userID != ""
}

// Day is a validated YYYY-MM-DD calendar day.
type Day string

// ParseDay validates raw input as a YYYY-MM-DD calendar day.
func ParseDay(rawInput string) (Day, error) {
	trimmed := strings.TrimSpace(rawInput)
	parsed, err := time.Parse(dayLayout, trimmed)
	if err != nil || parsed.Format(dayLayout) != trimmed {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, rawInput)
	}
	return Day(trimmed), nil
}

// String returns the YYYY-MM-DD representation.
func (d Day) String() string {
	return string(d)
}

// Nutrition holds the user-editable part of an entry.
type Nutrition struct {
	FoodName    string  `gorm:"column:food_name;size:320;not null;default:''"`
	Calories    int     `gorm:"column:calories;not null;default:0"`
	Protein     float64 `gorm:"column:protein_g;not null;default:0"`
	Carbs       float64 `gorm:"column:carbs_g;not null;default:0"`
	Fat         float64 `gorm:"column:fat_g;not null;default:0"`
	Fiber       float64 `gorm:"column:fiber_g;not null;default:0"`
	ServingSize string  `gorm:"column:serving_size;size:320;not null;default:''"`
	Confidence  float64 `gorm:"column:confidence;not null;default:0"`
	PhotoURL    string  `gorm:"column:photo_url;size:1024;not null;default:''"`
}

// Entry models one recorded meal. Date is the local calendar day at creation and
// doubles as the grouping key; LoggedAt is only used for ordering.
type Entry struct {
	EntryID   string    `gorm:"column:entry_id;primaryKey;size:190;not null"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index:idx_food_entries_user"`
	Date      string    `gorm:"column:date;size:10;not null"`
	LoggedAt  time.Time `gorm:"column:logged_at;not null"`
	Nutrition Nutrition `gorm:"embedded"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "food_entries"
}

// DayIndexName names the composite index the indexed query mode relies on.
const DayIndexName = "idx_food_entries_user_date_time"
