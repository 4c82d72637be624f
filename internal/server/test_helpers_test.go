package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/database"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/inference"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var testNoon = time.Date(2024, time.January, 5, 12, 0, 0, 0, time.UTC)

type tickingClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

type stubAnalyzer struct {
	estimate     inference.Estimate
	err          error
	lastImage    inference.Image
	lastLocation *inference.LocationHint
	lastName     string
}

func (s *stubAnalyzer) AnalyzeImage(_ context.Context, image inference.Image, location *inference.LocationHint) (inference.Estimate, error) {
	s.lastImage = image
	s.lastLocation = location
	return s.estimate, s.err
}

func (s *stubAnalyzer) AnalyzeName(_ context.Context, foodName string, location *inference.LocationHint) (inference.Estimate, error) {
	s.lastName = foodName
	s.lastLocation = location
	return s.estimate, s.err
}

type stubPhotoArchive struct {
	url    string
	err    error
	stored int
	userID string
}

func (s *stubPhotoArchive) Store(_ context.Context, userID string, _ []byte, _ string) (string, error) {
	s.stored++
	s.userID = userID
	return s.url, s.err
}

type testHarness struct {
	handler  http.Handler
	entries  *entries.Service
	users    *users.Service
	tokens   *auth.TokenIssuer
	realtime *RealtimeDispatcher
	analyzer *stubAnalyzer
	photos   *stubPhotoArchive
}

type harnessOption func(*Dependencies)

func withoutPhotos() harnessOption {
	return func(deps *Dependencies) {
		deps.Photos = nil
	}
}

func newTestHarness(t *testing.T, options ...harnessOption) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "platepal.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	clock := &tickingClock{current: testNoon}
	entryService, err := entries.NewService(entries.ServiceConfig{
		Database:   db,
		Calendar:   entries.NewCalendar(time.UTC, clock.Now),
		IDProvider: entries.NewUUIDProvider(),
		QueryMode:  entries.QueryModeIndexed,
	})
	if err != nil {
		t.Fatalf("failed to build entries service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: entries.NewUUIDProvider(),
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "platepal-auth",
		Audience:      "platepal-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	harness := &testHarness{
		entries:  entryService,
		users:    userService,
		tokens:   tokenIssuer,
		realtime: NewRealtimeDispatcher(),
		analyzer: &stubAnalyzer{},
		photos:   &stubPhotoArchive{url: "https://cdn.example.com/meals/photo.jpg"},
	}
	deps := Dependencies{
		TokenManager:      tokenIssuer,
		Users:             userService,
		Entries:           entryService,
		Analyzer:          harness.analyzer,
		Photos:            harness.photos,
		Realtime:          harness.realtime,
		HeartbeatInterval: time.Hour,
		Logger:            zap.NewNop(),
	}
	for _, option := range options {
		option(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	harness.handler = handler
	return harness
}

// signIn performs an anonymous sign-in through the API and returns the token and user id.
func (h *testHarness) signIn(t *testing.T, installationID string) (string, string) {
	t.Helper()
	body := `{"installation_id":"` + installationID + `"}`
	recorder := h.do(t, http.MethodPost, "/auth/anonymous", "", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("sign in failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var payload authResponsePayload
	decodeJSON(t, recorder.Body, &payload)
	if payload.AccessToken == "" || payload.UserID == "" || payload.TokenType != "Bearer" {
		t.Fatalf("unexpected sign in payload: %#v", payload)
	}
	return payload.AccessToken, payload.UserID
}

func (h *testHarness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h *testHarness) createEntry(t *testing.T, token, body string) string {
	t.Helper()
	recorder := h.do(t, http.MethodPost, "/entries", token, body)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeJSON(t, recorder.Body, &created)
	if created.ID == "" {
		t.Fatalf("expected created id")
	}
	return created.ID
}

func decodeJSON(t *testing.T, body io.Reader, target any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(target); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
