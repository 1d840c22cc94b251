package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"subtrack/internal/core"
	"subtrack/internal/engine"
)

// parseHorizon extracts the projection horizon in months, bounded to
// keep a single request from expanding an unbounded calendar.
func parseHorizon(r *http.Request, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get("horizon"))
	if v == "" {
		return fallback
	}
	months, err := strconv.Atoi(v)
	if err != nil || months < 1 {
		return fallback
	}
	if months > 60 {
		return 60
	}
	return months
}

// parseWindowDays extracts the upcoming-renewals lookahead in days.
func parseWindowDays(r *http.Request) int {
	v := strings.TrimSpace(r.URL.Query().Get("days"))
	if v == "" {
		return engine.DefaultUpcomingWindowDays
	}
	days, err := strconv.Atoi(v)
	if err != nil || days < 1 {
		return engine.DefaultUpcomingWindowDays
	}
	if days > 366 {
		return 366
	}
	return days
}

// parseTimelineFilter builds the timeline filter from query parameters.
// Unknown range values fall back to the unfiltered view.
func parseTimelineFilter(r *http.Request) core.TimelineFilter {
	q := r.URL.Query()
	filter := core.TimelineFilter{
		SearchTerm: sanitizeInput(q.Get("search")),
		Action:     core.Action(strings.TrimSpace(q.Get("action"))),
	}
	switch core.TimeRange(strings.TrimSpace(q.Get("range"))) {
	case core.RangeToday:
		filter.TimeRange = core.RangeToday
	case core.RangeThisWeek:
		filter.TimeRange = core.RangeThisWeek
	case core.RangeThisMonth:
		filter.TimeRange = core.RangeThisMonth
	default:
		filter.TimeRange = core.RangeAll
	}
	return filter
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
