package entries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errUnknownQueryMode  = errors.New("unknown query mode")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable code of the form <operation>.<reason>.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "entries.service.new"
	opCreate       = "entries.create"
	opGet          = "entries.get"
	opUpdate       = "entries.update"
	opDelete       = "entries.delete"
	opListForDay   = "entries.list_for_day"
	opListForWeek  = "entries.list_for_week"
	opDailyTotal   = "entries.daily_total"
	opListForRange = "entries.list_for_range"
	opOverview     = "entries.overview"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// QueryMode selects how day and week reads are executed.
type QueryMode string

const (
	// QueryModeIndexed filters and orders in the database. It needs the
	// composite (user_id, date, logged_at) index.
	QueryModeIndexed QueryMode = "indexed"
	// QueryModeScan filters by exact match only and narrows, groups and
	// sorts in memory. The week view reads the user's whole history.
	QueryModeScan QueryMode = "scan"
)

// ParseQueryMode validates a configured query mode. Empty input means indexed.
func ParseQueryMode(raw string) (QueryMode, error) {
	switch QueryMode(strings.ToLower(strings.TrimSpace(raw))) {
	case QueryModeIndexed, "":
		return QueryModeIndexed, nil
	case QueryModeScan:
		return QueryModeScan, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownQueryMode, raw)
	}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Calendar   Calendar
	IDProvider IDProvider
	QueryMode  QueryMode
	Logger     *zap.Logger
}

// Service reads and writes food entries on behalf of an explicit Session.
type Service struct {
	db         *gorm.DB
	calendar   Calendar
	idProvider IDProvider
	queryMode  QueryMode
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	mode, err := ParseQueryMode(string(cfg.QueryMode))
	if err != nil {
		return nil, newServiceError(opServiceNew, "invalid_query_mode", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		calendar:   cfg.Calendar,
		idProvider: cfg.IDProvider,
		queryMode:  mode,
		logger:     logger,
	}, nil
}

// Calendar exposes the calendar used to stamp and window entries.
func (s *Service) Calendar() Calendar {
	return s.calendar
}

// QueryMode reports the active query strategy.
func (s *Service) QueryMode() QueryMode {
	return s.queryMode
}

// Create stamps today's date and the current instant onto a new entry and
// stores it. Numeric fields are stored as given.
func (s *Service) Create(ctx context.Context, session Session, nutrition Nutrition) (Entry, error) {
	if err := s.ready(opCreate, session); err != nil {
		return Entry{}, err
	}

	entryID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("user_id", session.UserID().String()))
		return Entry{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	now := s.calendar.Now()
	entry := Entry{
		EntryID:   entryID,
		UserID:    session.UserID().String(),
		Date:      s.calendar.DayOf(now).String(),
		LoggedAt:  now.UTC().Truncate(time.Microsecond),
		Nutrition: nutrition,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("user_id", entry.UserID))
		return Entry{}, newServiceError(opCreate, "insert_failed", err)
	}
	return entry, nil
}

// Get loads a single entry owned by the session user.
func (s *Service) Get(ctx context.Context, session Session, rawEntryID string) (Entry, error) {
	if err := s.ready(opGet, session); err != nil {
		return Entry{}, err
	}
	entryID, err := NewEntryID(rawEntryID)
	if err != nil {
		return Entry{}, newServiceError(opGet, "invalid_entry_id", err)
	}
	return s.loadOwned(s.db.WithContext(ctx), opGet, session, entryID)
}

// Update overwrites every editable field of an existing entry. Owner, date and
// timestamp are kept. Concurrent updates are last-write-wins.
func (s *Service) Update(ctx context.Context, session Session, rawEntryID string, nutrition Nutrition) (Entry, error) {
	if err := s.ready(opUpdate, session); err != nil {
		return Entry{}, err
	}
	entryID, err := NewEntryID(rawEntryID)
	if err != nil {
		return Entry{}, newServiceError(opUpdate, "invalid_entry_id", err)
	}

	var updated Entry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.loadOwned(tx, opUpdate, session, entryID)
		if err != nil {
			return err
		}
		existing.Nutrition = nutrition
		if err := tx.Save(&existing).Error; err != nil {
			s.logError(opUpdate, "save_failed", err,
				zap.String("user_id", session.UserID().String()),
				zap.String("entry_id", entryID.String()))
			return newServiceError(opUpdate, "save_failed", err)
		}
		updated = existing
		return nil
	})
	if txErr != nil {
		return Entry{}, txErr
	}
	return updated, nil
}

// Delete removes one entry. Deleting an id that does not exist succeeds.
func (s *Service) Delete(ctx context.Context, session Session, rawEntryID string) error {
	if err := s.ready(opDelete, session); err != nil {
		return err
	}
	entryID, err := NewEntryID(rawEntryID)
	if err != nil {
		return newServiceError(opDelete, "invalid_entry_id", err)
	}
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND entry_id = ?", session.UserID().String(), entryID.String()).
		Delete(&Entry{}).Error; err != nil {
		s.logError(opDelete, "delete_failed", err,
			zap.String("user_id", session.UserID().String()),
			zap.String("entry_id", entryID.String()))
		return newServiceError(opDelete, "delete_failed", err)
	}
	return nil
}

// ListForDay returns the session user's entries for the day, newest first. An
// empty rawDay means today.
func (s *Service) ListForDay(ctx context.Context, session Session, rawDay string) ([]Entry, error) {
	if err := s.ready(opListForDay, session); err != nil {
		return nil, err
	}
	day, err := s.resolveDay(rawDay)
	if err != nil {
		return nil, newServiceError(opListForDay, "invalid_date", err)
	}
	return s.listForDay(ctx, opListForDay, session, day)
}

// ListForWeek returns the trailing week ending today, keyed by day.
func (s *Service) ListForWeek(ctx context.Context, session Session) (WeeklyHistory, error) {
	if err := s.ready(opListForWeek, session); err != nil {
		return nil, err
	}
	return s.listForDays(ctx, opListForWeek, session, s.calendar.Week())
}

// ListForTrailingDays returns count days ending today, keyed by day.
func (s *Service) ListForTrailingDays(ctx context.Context, session Session, count int) (WeeklyHistory, error) {
	if err := s.ready(opListForRange, session); err != nil {
		return nil, err
	}
	if count <= 0 {
		return WeeklyHistory{}, nil
	}
	return s.listForDays(ctx, opListForRange, session, s.calendar.TrailingDays(count))
}

// DailyTotal sums the entries of the day. An empty rawDay means today.
func (s *Service) DailyTotal(ctx context.Context, session Session, rawDay string) (Totals, error) {
	if err := s.ready(opDailyTotal, session); err != nil {
		return Totals{}, err
	}
	day, err := s.resolveDay(rawDay)
	if err != nil {
		return Totals{}, newServiceError(opDailyTotal, "invalid_date", err)
	}
	dayEntries, err := s.listForDay(ctx, opDailyTotal, session, day)
	if err != nil {
		return Totals{}, err
	}
	return SumTotals(dayEntries), nil
}

// DailyCalories returns today's calorie sum.
func (s *Service) DailyCalories(ctx context.Context, session Session) (int, error) {
	totals, err := s.DailyTotal(ctx, session, "")
	if err != nil {
		return 0, err
	}
	return totals.Calories, nil
}

// Overview bundles what the history and profile views need on focus.
type Overview struct {
	Date        Day
	Today       []Entry
	TodayTotals Totals
	Week        WeeklyHistory
	WeekStats   WeeklyStats
}

// Overview reads today's entries and the trailing week concurrently.
func (s *Service) Overview(ctx context.Context, session Session) (Overview, error) {
	if err := s.ready(opOverview, session); err != nil {
		return Overview{}, err
	}

	today := s.calendar.Today()
	weekDays := s.calendar.Week()
	var (
		todayEntries []Entry
		week         WeeklyHistory
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		todayEntries, err = s.listForDay(groupCtx, opOverview, session, today)
		return err
	})
	group.Go(func() error {
		var err error
		week, err = s.listForDays(groupCtx, opOverview, session, weekDays)
		return err
	})
	if err := group.Wait(); err != nil {
		return Overview{}, err
	}

	return Overview{
		Date:        today,
		Today:       todayEntries,
		TodayTotals: SumTotals(todayEntries),
		Week:        week,
		WeekStats:   week.Stats(),
	}, nil
}

func (s *Service) listForDay(ctx context.Context, operation string, session Session, day Day) ([]Entry, error) {
	query := s.db.WithContext(ctx).
		Where("user_id = ? AND date = ?", session.UserID().String(), day.String())
	if s.queryMode == QueryModeIndexed {
		query = query.Order("logged_at DESC").Order("entry_id DESC")
	}

	var dayEntries []Entry
	if err := query.Find(&dayEntries).Error; err != nil {
		s.logError(operation, "query_failed", err,
			zap.String("user_id", session.UserID().String()),
			zap.String("date", day.String()))
		return nil, newServiceError(operation, "query_failed", err)
	}
	if s.queryMode == QueryModeScan {
		SortNewestFirst(dayEntries)
	}
	if dayEntries == nil {
		dayEntries = []Entry{}
	}
	return dayEntries, nil
}

func (s *Service) listForDays(ctx context.Context, operation string, session Session, days []Day) (WeeklyHistory, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", session.UserID().String())
	if s.queryMode == QueryModeIndexed && len(days) > 0 {
		newest, oldest := days[0], days[len(days)-1]
		query = query.
			Where("date >= ? AND date <= ?", oldest.String(), newest.String()).
			Order("date DESC").
			Order("logged_at DESC")
	}

	var found []Entry
	if err := query.Find(&found).Error; err != nil {
		s.logError(operation, "query_failed", err, zap.String("user_id", session.UserID().String()))
		return nil, newServiceError(operation, "query_failed", err)
	}
	return GroupByDate(found, days), nil
}

func (s *Service) loadOwned(db *gorm.DB, operation string, session Session, entryID EntryID) (Entry, error) {
	var entry Entry
	err := db.
		Where("user_id = ? AND entry_id = ?", session.UserID().String(), entryID.String()).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, newServiceError(operation, "not_found", ErrEntryNotFound)
	}
	if err != nil {
		s.logError(operation, "select_failed", err,
			zap.String("user_id", session.UserID().String()),
			zap.String("entry_id", entryID.String()))
		return Entry{}, newServiceError(operation, "select_failed", err)
	}
	return entry, nil
}

func (s *Service) resolveDay(rawDay string) (Day, error) {
	if strings.TrimSpace(rawDay) == "" {
		return s.calendar.Today(), nil
	}
	return ParseDay(rawDay)
}

func (s *Service) ready(operation string, session Session) error {
	if s == nil || s.db == nil {
		s.logError(operation, "missing_database", errMissingDatabase)
		return newServiceError(operation, "missing_database", errMissingDatabase)
	}
	if !session.valid() {
		return newServiceError(operation, "missing_session", ErrInvalidSession)
	}
	if s.idProvider == nil && operation == opCreate {
		s.logError(operation, "missing_id_provider", errMissingIDProvider)
		return newServiceError(operation, "missing_id_provider", errMissingIDProvider)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("entries service error", attrs...)
}
