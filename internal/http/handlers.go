package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/engine"
	"subtrack/internal/export"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	horizon := parseHorizon(r, s.opts.HorizonMonths)
	window := parseWindowDays(r)
	params := []string{horizonParam(horizon), windowParam(window)}
	s.serveView(w, r, "dashboard", params, func(snap *engine.Snapshot, now time.Time) (any, error) {
		return s.engine.BuildDashboard(r.Context(), snap, now, horizon, window)
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.serveView(w, r, "categories", nil, func(snap *engine.Snapshot, _ time.Time) (any, error) {
		return s.engine.CategoryBreakdown(snap), nil
	})
}

func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	horizon := parseHorizon(r, s.opts.HorizonMonths)
	s.serveView(w, r, "projection", []string{horizonParam(horizon)}, func(snap *engine.Snapshot, now time.Time) (any, error) {
		return s.engine.MonthlyProjection(snap, now, horizon), nil
	})
}

func (s *Server) handlePeakMonths(w http.ResponseWriter, r *http.Request) {
	horizon := parseHorizon(r, s.opts.HorizonMonths)
	s.serveView(w, r, "peaks", []string{horizonParam(horizon)}, func(snap *engine.Snapshot, now time.Time) (any, error) {
		return s.engine.PeakMonths(snap, now, horizon), nil
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	s.serveView(w, r, "trends", nil, func(snap *engine.Snapshot, _ time.Time) (any, error) {
		return s.engine.Trends(snap), nil
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filter := parseTimelineFilter(r)
	params := []string{
		"search=" + strings.ToLower(filter.SearchTerm),
		"action=" + string(filter.Action),
		"range=" + string(filter.TimeRange),
	}
	s.serveView(w, r, "timeline", params, func(snap *engine.Snapshot, now time.Time) (any, error) {
		return s.engine.Timeline(snap, filter, now), nil
	})
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	window := parseWindowDays(r)
	s.serveView(w, r, "upcoming", []string{windowParam(window)}, func(snap *engine.Snapshot, now time.Time) (any, error) {
		return s.engine.UpcomingRenewals(snap, now, window), nil
	})
}

type calendarResponse struct {
	Occurrences []core.Occurrence    `json:"occurrences"`
	Skipped     []core.SkippedRecord `json:"skipped,omitempty"`
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	horizon := parseHorizon(r, s.opts.HorizonMonths)
	s.serveView(w, r, "calendar", []string{horizonParam(horizon)}, func(snap *engine.Snapshot, now time.Time) (any, error) {
		occurrences, skipped := s.engine.CalendarOccurrences(snap, now, horizon)
		return calendarResponse{Occurrences: occurrences, Skipped: skipped}, nil
	})
}

// CSV exports recompute from a fresh snapshot; they are not cached
// because their consumers are occasional downloads, not dashboards.

func (s *Server) handleExportCategories(w http.ResponseWriter, r *http.Request) {
	s.serveCSV(w, r, "categories.csv", func(snap *engine.Snapshot, _ time.Time) error {
		return export.WriteCategoriesCSV(w, s.engine.CategoryBreakdown(snap))
	})
}

func (s *Server) handleExportProjection(w http.ResponseWriter, r *http.Request) {
	horizon := parseHorizon(r, s.opts.HorizonMonths)
	s.serveCSV(w, r, "projection.csv", func(snap *engine.Snapshot, now time.Time) error {
		return export.WriteProjectionCSV(w, s.engine.MonthlyProjection(snap, now, horizon))
	})
}

func (s *Server) handleExportTimeline(w http.ResponseWriter, r *http.Request) {
	filter := parseTimelineFilter(r)
	s.serveCSV(w, r, "timeline.csv", func(snap *engine.Snapshot, now time.Time) error {
		return export.WriteTimelineCSV(w, s.engine.Timeline(snap, filter, now))
	})
}

func (s *Server) handleExportUpcoming(w http.ResponseWriter, r *http.Request) {
	window := parseWindowDays(r)
	s.serveCSV(w, r, "upcoming.csv", func(snap *engine.Snapshot, now time.Time) error {
		return export.WriteOccurrencesCSV(w, s.engine.UpcomingRenewals(snap, now, window))
	})
}

func (s *Server) serveCSV(w http.ResponseWriter, r *http.Request, filename string, write func(snap *engine.Snapshot, now time.Time) error) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	now := s.opts.Clock()
	snap, err := s.engine.Snapshot(r.Context(), now)
	if err != nil {
		slog.ErrorContext(r.Context(), "Snapshot failed", "export", filename, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := write(snap, now); err != nil {
		slog.ErrorContext(r.Context(), "CSV export failed", "export", filename, "error", err)
	}
}

// SubscriptionWriter is the write path behind the mutating endpoints.
// *services.SubscriptionService satisfies it.
type SubscriptionWriter interface {
	CreateSubscription(ctx context.Context, sub core.Subscription, now time.Time) error
	UpdateSubscription(ctx context.Context, sub core.Subscription, now time.Time) error
	DeleteSubscription(ctx context.Context, id string, now time.Time) error
	RecordAction(ctx context.Context, entry core.HistoryEntry) error
}

type writeAPI struct {
	server *Server
	writer SubscriptionWriter
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if s.writer == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "write path not configured")
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.writer.create(w, r)
	case http.MethodPut:
		s.writer.update(w, r)
	case http.MethodDelete:
		s.writer.delete(w, r)
	default:
		w.Header().Set("Allow", "POST, PUT, DELETE")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type subscriptionPayload struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Category        string  `json:"category"`
	Cost            float64 `json:"cost"`
	BillingCycle    string  `json:"billingCycle"`
	NextBillingDate string  `json:"nextBillingDate"`
	IsActive        *bool   `json:"isActive"`
	IsTrial         bool    `json:"isTrial"`
	TrialDays       int     `json:"trialDays"`
}

func (p subscriptionPayload) toSubscription() (core.Subscription, error) {
	anchor, err := time.Parse("2006-01-02", strings.TrimSpace(p.NextBillingDate))
	if err != nil {
		return core.Subscription{}, err
	}
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	return core.Subscription{
		ID:              strings.TrimSpace(p.ID),
		Name:            sanitizeInput(p.Name),
		Category:        sanitizeInput(p.Category),
		Cost:            p.Cost,
		BillingCycle:    core.BillingCycle(strings.TrimSpace(p.BillingCycle)),
		NextBillingDate: anchor,
		IsActive:        active,
		IsTrial:         p.IsTrial,
		TrialDays:       p.TrialDays,
	}, nil
}

func (a *writeAPI) create(w http.ResponseWriter, r *http.Request) {
	var payload subscriptionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := payload.toSubscription()
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "invalid next billing date")
		return
	}
	if err := sub.Validate(); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := a.writer.CreateSubscription(r.Context(), sub, a.server.opts.Clock()); err != nil {
		slog.ErrorContext(r.Context(), "Create subscription failed", "id", sub.ID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "create failed")
		return
	}
	a.server.InvalidateViews()
	writeJSON(w, http.StatusCreated, map[string]string{"id": sub.ID})
}

func (a *writeAPI) update(w http.ResponseWriter, r *http.Request) {
	var payload subscriptionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sub, err := payload.toSubscription()
	if err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, "invalid next billing date")
		return
	}
	if err := sub.Validate(); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := a.writer.UpdateSubscription(r.Context(), sub, a.server.opts.Clock()); err != nil {
		slog.ErrorContext(r.Context(), "Update subscription failed", "id", sub.ID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "update failed")
		return
	}
	a.server.InvalidateViews()
	writeJSON(w, http.StatusOK, map[string]string{"id": sub.ID})
}

func (a *writeAPI) delete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "missing id")
		return
	}
	if err := a.writer.DeleteSubscription(r.Context(), id, a.server.opts.Clock()); err != nil {
		slog.ErrorContext(r.Context(), "Delete subscription failed", "id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	a.server.InvalidateViews()
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

type actionPayload struct {
	SubscriptionID string `json:"subscriptionId"`
	Action         string `json:"action"`
	OldValue       string `json:"oldValue"`
	NewValue       string `json:"newValue"`
}

func (s *Server) handleRecordAction(w http.ResponseWriter, r *http.Request) {
	if s.writer == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "write path not configured")
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload actionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entry := core.HistoryEntry{
		SubscriptionID: strings.TrimSpace(payload.SubscriptionID),
		Action:         core.Action(strings.TrimSpace(payload.Action)),
		OldValue:       sanitizeInput(payload.OldValue),
		NewValue:       sanitizeInput(payload.NewValue),
		CreatedAt:      s.opts.Clock(),
	}
	if entry.SubscriptionID == "" || entry.Action == "" {
		writeJSONError(w, http.StatusUnprocessableEntity, "subscriptionId and action are required")
		return
	}
	if err := s.writer.writer.RecordAction(r.Context(), entry); err != nil {
		slog.ErrorContext(r.Context(), "Record action failed",
			"subscription_id", entry.SubscriptionID,
			"action", entry.Action,
			"error", err)
		writeJSONError(w, http.StatusInternalServerError, "record action failed")
		return
	}
	s.InvalidateViews()
	writeJSON(w, http.StatusCreated, map[string]string{"subscriptionId": entry.SubscriptionID})
}

func horizonParam(months int) string {
	return "horizon=" + strconv.Itoa(months)
}

func windowParam(days int) string {
	return "days=" + strconv.Itoa(days)
}
