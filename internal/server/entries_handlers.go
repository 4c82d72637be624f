package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/platepal/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/platepal/backend/internal/export"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultExportDays = entries.WeekLength
	maxExportDays     = 366
)

func (h *httpHandler) handleCreateEntry(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	var request nutritionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	entry, err := h.entries.Create(c.Request.Context(), session, request.toNutrition())
	if err != nil {
		h.respondServiceError(c, "create_failed", err)
		return
	}
	h.publishEntryChange(session, entry.EntryID)
	c.JSON(http.StatusCreated, gin.H{"id": entry.EntryID})
}

func (h *httpHandler) handleGetEntry(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	entry, err := h.entries.Get(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		h.respondServiceError(c, "read_failed", err)
		return
	}
	c.JSON(http.StatusOK, newEntryPayload(entry))
}

func (h *httpHandler) handleUpdateEntry(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	var request nutritionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	entry, err := h.entries.Update(c.Request.Context(), session, c.Param("id"), request.toNutrition())
	if err != nil {
		h.respondServiceError(c, "update_failed", err)
		return
	}
	h.publishEntryChange(session, entry.EntryID)
	c.JSON(http.StatusOK, newEntryPayload(entry))
}

func (h *httpHandler) handleDeleteEntry(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	entryID := c.Param("id")
	if err := h.entries.Delete(c.Request.Context(), session, entryID); err != nil {
		h.respondServiceError(c, "delete_failed", err)
		return
	}
	h.publishEntryChange(session, strings.TrimSpace(entryID))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListForDay(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	dayEntries, err := h.entries.ListForDay(c.Request.Context(), session, c.Query("date"))
	if err != nil {
		h.respondServiceError(c, "list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": newEntryPayloads(dayEntries)})
}

func (h *httpHandler) handleDailyTotal(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	totals, err := h.entries.DailyTotal(c.Request.Context(), session, c.Query("date"))
	if err != nil {
		h.respondServiceError(c, "total_failed", err)
		return
	}
	c.JSON(http.StatusOK, newTotalsPayload(totals))
}

func (h *httpHandler) handleListForWeek(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	history, err := h.entries.ListForWeek(c.Request.Context(), session)
	if err != nil {
		h.respondServiceError(c, "week_failed", err)
		return
	}
	c.JSON(http.StatusOK, newWeekPayload(history))
}

func (h *httpHandler) handleOverview(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	overview, err := h.entries.Overview(c.Request.Context(), session)
	if err != nil {
		h.respondServiceError(c, "overview_failed", err)
		return
	}
	c.JSON(http.StatusOK, overviewPayload{
		Date:        overview.Date.String(),
		Today:       newEntryPayloads(overview.Today),
		TodayTotals: newTotalsPayload(overview.TodayTotals),
		Week:        newWeekPayload(overview.Week),
		WeekStats:   newWeekStatsPayload(overview.WeekStats),
	})
}

type profilePayload struct {
	UserID        string           `json:"userId"`
	Provider      string           `json:"provider"`
	MemberSince   string           `json:"memberSince"`
	TodayCalories int              `json:"todayCalories"`
	WeekStats     weekStatsPayload `json:"weekStats"`
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	identity, err := h.users.Lookup(c.Request.Context(), session.UserID().String())
	if err != nil {
		h.logger.Warn("profile lookup failed", zap.String("user_id", session.UserID().String()), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_user"})
		return
	}
	overview, err := h.entries.Overview(c.Request.Context(), session)
	if err != nil {
		h.respondServiceError(c, "profile_failed", err)
		return
	}
	c.JSON(http.StatusOK, profilePayload{
		UserID:        identity.UserID,
		Provider:      identity.Provider,
		MemberSince:   h.entries.Calendar().DayOf(identity.CreatedAt).String(),
		TodayCalories: overview.TodayTotals.Calories,
		WeekStats:     newWeekStatsPayload(overview.WeekStats),
	})
}

func (h *httpHandler) handleExport(c *gin.Context) {
	session, ok := h.sessionFor(c)
	if !ok {
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_format"})
		return
	}
	days := defaultExportDays
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed < 1 || parsed > maxExportDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_days"})
			return
		}
		days = parsed
	}

	history, err := h.entries.ListForTrailingDays(c.Request.Context(), session, days)
	if err != nil {
		h.respondServiceError(c, "export_failed", err)
		return
	}

	var buffer bytes.Buffer
	calendar := h.entries.Calendar()
	if err := export.Write(&buffer, format, history.Entries(), calendar.Location()); err != nil {
		h.logger.Error("export rendering failed", zap.String("format", string(format)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename(calendar.Today())))
	c.Data(http.StatusOK, format.ContentType(), buffer.Bytes())
}

func (h *httpHandler) publishEntryChange(session entries.Session, entryID string) {
	if entryID == "" {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		UserID:    session.UserID().String(),
		EventType: RealtimeEventEntryChanged,
		EntryIDs:  []string{entryID},
		Timestamp: h.entries.Calendar().Now().UTC(),
	})
}
