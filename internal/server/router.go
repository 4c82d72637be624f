package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/inference"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	userIDContextKey         = "platepal_user_id"
	accessTokenQueryKey      = "access_token"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingUserDirectory = errors.New("user directory dependency required")
	errMissingEntries       = errors.New("entries service dependency required")
	errMissingAnalyzer      = errors.New("analyzer dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates bearer tokens.
type TokenManager interface {
	IssueToken(ctx context.Context, subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// UserDirectory resolves anonymous sign-ins onto canonical users.
type UserDirectory interface {
	SignInAnonymously(ctx context.Context, installationID string) (users.Identity, error)
	Lookup(ctx context.Context, userID string) (users.Identity, error)
}

// PhotoArchive stores analyzed meal photos and returns their public URL.
type PhotoArchive interface {
	Store(ctx context.Context, userID string, data []byte, contentType string) (string, error)
}

// Dependencies wires the HTTP layer. Photos and Realtime are optional.
type Dependencies struct {
	TokenManager      TokenManager
	Users             UserDirectory
	Entries           *entries.Service
	Analyzer          inference.Analyzer
	Photos            PhotoArchive
	Realtime          *RealtimeDispatcher
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin router serving the PlatePal API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUserDirectory
	}
	if deps.Entries == nil {
		return nil, errMissingEntries
	}
	if deps.Analyzer == nil {
		return nil, errMissingAnalyzer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		tokens:    deps.TokenManager,
		users:     deps.Users,
		entries:   deps.Entries,
		analyzer:  deps.Analyzer,
		photos:    deps.Photos,
		realtime:  realtime,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth/anonymous", handler.handleAnonymousAuth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/analyze", handler.handleAnalyzeImage)
	protected.POST("/analyze/name", handler.handleAnalyzeName)
	protected.POST("/entries", handler.handleCreateEntry)
	protected.GET("/entries", handler.handleListForDay)
	protected.GET("/entries/total", handler.handleDailyTotal)
	protected.GET("/entries/week", handler.handleListForWeek)
	protected.GET("/entries/overview", handler.handleOverview)
	protected.GET("/entries/export", handler.handleExport)
	protected.GET("/entries/:id", handler.handleGetEntry)
	protected.PUT("/entries/:id", handler.handleUpdateEntry)
	protected.DELETE("/entries/:id", handler.handleDeleteEntry)
	protected.GET("/profile", handler.handleProfile)

	streams := router.Group("/entries")
	streams.Use(handler.authorizeStreamRequest)
	streams.GET("/stream", handler.handleEntryStream)
	streams.GET("/ws", handler.handleEntrySocket)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: func(string) bool { return true },
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	})
}

type httpHandler struct {
	tokens    TokenManager
	users     UserDirectory
	entries   *entries.Service
	analyzer  inference.Analyzer
	photos    PhotoArchive
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type anonymousAuthRequest struct {
	InstallationID string `json:"installation_id"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
}

func (h *httpHandler) handleAnonymousAuth(c *gin.Context) {
	var request anonymousAuthRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}

	identity, err := h.users.SignInAnonymously(c.Request.Context(), request.InstallationID)
	if err != nil {
		if errors.Is(err, users.ErrInvalidIdentity) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_installation_id"})
			return
		}
		h.logger.Error("anonymous sign-in failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign_in_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		UserID:      identity.UserID,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	h.authenticate(c, token)
}

// authorizeStreamRequest also accepts the token as a query parameter since
// EventSource and browser websockets cannot set headers.
func (h *httpHandler) authorizeStreamRequest(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = strings.TrimSpace(c.Query(accessTokenQueryKey))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	h.authenticate(c, token)
}

func (h *httpHandler) authenticate(c *gin.Context, token string) {
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func bearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func (h *httpHandler) sessionFor(c *gin.Context) (entries.Session, bool) {
	session, err := entries.NewSession(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return entries.Session{}, false
	}
	return session, true
}

// respondServiceError maps entries failures onto HTTP responses. Service error
// codes are passed through so clients can tell failures apart.
func (h *httpHandler) respondServiceError(c *gin.Context, fallback string, err error) {
	status := http.StatusInternalServerError
	label := fallback
	switch {
	case errors.Is(err, entries.ErrEntryNotFound):
		status, label = http.StatusNotFound, "not_found"
	case errors.Is(err, entries.ErrInvalidDate):
		status, label = http.StatusBadRequest, "invalid_date"
	case errors.Is(err, entries.ErrInvalidEntryID):
		status, label = http.StatusBadRequest, "invalid_entry_id"
	case errors.Is(err, entries.ErrInvalidSession), errors.Is(err, entries.ErrInvalidUserID):
		status, label = http.StatusUnauthorized, "unauthorized"
	}

	body := gin.H{"error": label}
	var serviceErr *entries.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}
