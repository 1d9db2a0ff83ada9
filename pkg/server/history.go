package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reservetender/reservetender/pkg/log"
	"github.com/reservetender/reservetender/pkg/types"
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	outcomes, err := s.db.GetOutcomeHistory(ctx, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get outcomes", slog.Any("error", err))
		writeJSONError(w, "failed to get outcomes", http.StatusInternalServerError)
		return
	}
	if outcomes == nil {
		outcomes = []types.Outcome{}
	}

	writeJSON(w, struct {
		Outcomes []types.Outcome `json:"outcomes"`
	}{Outcomes: outcomes})
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		// Default to the last 7 days if not specified
		end := time.Now()
		start := end.Add(-7 * 24 * time.Hour)
		return start, end, nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > 31*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed 31 days")
	}

	return start, end, nil
}
