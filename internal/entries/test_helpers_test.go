package entries

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// steppingClock returns a strictly increasing instant on every call.
type steppingClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func newSteppingClock(start time.Time) *steppingClock {
	return &steppingClock{current: start, step: time.Second}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(c.step)
	return c.current
}

type sequenceIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("entry-%03d", p.next), nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "entries.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, mode QueryMode, clock *steppingClock) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database:   db,
		Calendar:   NewCalendar(time.UTC, clock.Now),
		IDProvider: &sequenceIDProvider{},
		QueryMode:  mode,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db
}

func mustSession(t *testing.T, userID string) Session {
	t.Helper()
	session, err := NewSession(userID)
	if err != nil {
		t.Fatalf("unexpected session error: %v", err)
	}
	return session
}

func seedEntry(t *testing.T, db *gorm.DB, entry Entry) {
	t.Helper()
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed entry %s: %v", entry.EntryID, err)
	}
}

var bothQueryModes = []QueryMode{QueryModeIndexed, QueryModeScan}
