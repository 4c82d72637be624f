package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/database"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/inference"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/server"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	signingSecret   = "integration-secret"
	installationID  = "device-abc"
	jsonContentType = "application/json"
)

func TestAnonymousMealFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	inferenceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", jsonContentType)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"foodName\":\"Margherita pizza\",\"calories\":\"712.4\",\"protein\":28,\"carbs\":null,\"fat\":26,\"fiber\":4,\"servingSize\":\"2 slices\",\"confidence\":88}"}]}}]}`))
	}))
	defer inferenceServer.Close()

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(testContext.TempDir(), "integration.db"),
	}, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	if !database.HasEntryDayIndex(db) {
		testContext.Fatalf("expected migrations to create the entry day index")
	}

	idProvider := entries.NewUUIDProvider()
	entryService, err := entries.NewService(entries.ServiceConfig{
		Database:   db,
		Calendar:   entries.NewCalendar(time.UTC, nil),
		IDProvider: idProvider,
		QueryMode:  entries.QueryModeIndexed,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build entries service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(signingSecret),
		Issuer:        "platepal-auth",
		Audience:      "platepal-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to build token issuer: %v", err)
	}
	analyzer, err := inference.NewClient(context.Background(), inference.Config{
		Provider: inference.ProviderGemini,
		APIKey:   "integration-key",
		Endpoint: inferenceServer.URL,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		testContext.Fatalf("failed to build analyzer: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenIssuer,
		Users:        userService,
		Entries:      entryService,
		Analyzer:     analyzer,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	var signIn struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	doJSON(testContext, http.MethodPost, testServer.URL+"/auth/anonymous", "", map[string]any{
		"installation_id": installationID,
	}, http.StatusOK, &signIn)
	if signIn.AccessToken == "" || signIn.UserID == "" {
		testContext.Fatalf("unexpected sign in response: %#v", signIn)
	}

	var again struct {
		UserID string `json:"user_id"`
	}
	doJSON(testContext, http.MethodPost, testServer.URL+"/auth/anonymous", "", map[string]any{
		"installation_id": installationID,
	}, http.StatusOK, &again)
	if again.UserID != signIn.UserID {
		testContext.Fatalf("expected stable user id across sign-ins, got %s and %s", signIn.UserID, again.UserID)
	}

	var estimate map[string]any
	doJSON(testContext, http.MethodPost, testServer.URL+"/analyze", signIn.AccessToken, map[string]any{
		"image_base64": "aW1hZ2U=",
	}, http.StatusOK, &estimate)
	if estimate["foodName"] != "Margherita pizza" || estimate["calories"] != float64(712) {
		testContext.Fatalf("unexpected estimate: %#v", estimate)
	}

	var created struct {
		ID string `json:"id"`
	}
	doJSON(testContext, http.MethodPost, testServer.URL+"/entries", signIn.AccessToken, estimate, http.StatusCreated, &created)
	if created.ID == "" {
		testContext.Fatalf("expected created entry id")
	}

	var secondCreated struct {
		ID string `json:"id"`
	}
	doJSON(testContext, http.MethodPost, testServer.URL+"/entries", signIn.AccessToken, map[string]any{
		"foodName": "Espresso",
		"calories": 5,
	}, http.StatusCreated, &secondCreated)

	var dayList struct {
		Entries []struct {
			ID       string `json:"id"`
			FoodName string `json:"foodName"`
		} `json:"entries"`
	}
	doJSON(testContext, http.MethodGet, testServer.URL+"/entries", signIn.AccessToken, nil, http.StatusOK, &dayList)
	if len(dayList.Entries) != 2 || dayList.Entries[0].ID != secondCreated.ID {
		testContext.Fatalf("unexpected day list: %#v", dayList)
	}

	var totals struct {
		Calories int `json:"calories"`
	}
	doJSON(testContext, http.MethodGet, testServer.URL+"/entries/total", signIn.AccessToken, nil, http.StatusOK, &totals)
	if totals.Calories != 717 {
		testContext.Fatalf("expected 717 calories, got %d", totals.Calories)
	}

	doJSON(testContext, http.MethodDelete, testServer.URL+"/entries/"+created.ID, signIn.AccessToken, nil, http.StatusNoContent, nil)

	doJSON(testContext, http.MethodGet, testServer.URL+"/entries/total", signIn.AccessToken, nil, http.StatusOK, &totals)
	if totals.Calories != 5 {
		testContext.Fatalf("expected 5 calories after delete, got %d", totals.Calories)
	}

	doJSON(testContext, http.MethodGet, testServer.URL+"/entries/"+created.ID, signIn.AccessToken, nil, http.StatusNotFound, nil)
}

func doJSON(testContext *testing.T, method, url, token string, body any, expectedStatus int, target any) {
	testContext.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			testContext.Fatalf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, url, reader)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer response.Body.Close()
	if response.StatusCode != expectedStatus {
		testContext.Fatalf("%s %s: expected status %d, got %d", method, url, expectedStatus, response.StatusCode)
	}
	if target != nil {
		if err := json.NewDecoder(response.Body).Decode(target); err != nil {
			testContext.Fatalf("failed to decode response: %v", err)
		}
	}
}
