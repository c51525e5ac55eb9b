package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"cardiometrix/internal/risk"
	"cardiometrix/internal/types"
)

// importBodyLimit bounds a bulk measurement upload (post-compression).
const importBodyLimit = 32 << 20 // 32 MB

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"status": "ok"}})
}

// localToday resolves the requesting user's current calendar date from their
// stored timezone, defaulting to UTC when the user record has none.
func (s *Server) localToday(r *http.Request) string {
	userID := types.GetUserID(r.Context())
	tz := ""
	if s.cfg.Users != nil {
		if u, err := s.cfg.Users.GetByID(r.Context(), userID); err == nil {
			tz = u.Timezone
		}
	}
	return types.LocalDate(s.cfg.Now(), tz)
}

// --- measurements ---

type createMeasurementRequest struct {
	Type       string         `json:"type"`
	MeasuredAt time.Time      `json:"measured_at"`
	Payload    map[string]any `json:"payload"`
}

func (s *Server) handleCreateMeasurement(w http.ResponseWriter, r *http.Request) {
	var req createMeasurementRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	mt := types.MeasurementType(req.Type)
	if !types.IsValidMeasurementType(mt) {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidMeasurement,
			"unknown measurement type", nil))
		return
	}
	if req.MeasuredAt.IsZero() {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"measured_at is required", nil))
		return
	}
	if len(req.Payload) == 0 {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"payload is required", nil))
		return
	}

	m, err := s.cfg.Measurements.Insert(r.Context(), types.Measurement{
		UserID:     types.GetUserID(r.Context()),
		Type:       mt,
		MeasuredAt: req.MeasuredAt.UTC(),
		Payload:    req.Payload,
	})
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusCreated, APIResponse{Data: m})
}

func (s *Server) handleImportMeasurements(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, importBodyLimit)

	stats, err := s.cfg.Importer.Import(r.Context(), types.GetUserID(r.Context()), r.Body)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: stats})
}

// --- risk ---

type computeRiskRequest struct {
	AsOfDate string `json:"as_of_date"`
}

func (s *Server) handleComputeRisk(w http.ResponseWriter, r *http.Request) {
	// The date is optional; an absent body means "compute for today".
	var req computeRiskRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			Error(w, r, err)
			return
		}
	}
	asOf := req.AsOfDate
	if asOf == "" {
		asOf = s.localToday(r)
	}

	out, err := s.cfg.Risk.ComputeForUser(r.Context(), types.GetUserID(r.Context()), asOf)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]any{
		"risk":  out.Snapshot,
		"nudge": out.Nudge,
	}})
}

func (s *Server) handleRiskToday(w http.ResponseWriter, r *http.Request) {
	s.respondRiskForDate(w, r, s.localToday(r))
}

func (s *Server) handleRiskForecast(w http.ResponseWriter, r *http.Request) {
	horizons, err := parseHorizons(r.URL.Query().Get("horizons"))
	if err != nil {
		Error(w, r, err)
		return
	}

	forecast, err := s.cfg.Forecast.Forecast(r.Context(),
		types.GetUserID(r.Context()), s.localToday(r), horizons)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: forecast})
}

// parseHorizons reads the optional comma-separated ?horizons query. Empty
// means the forecaster's defaults.
func parseHorizons(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	var horizons []int
	for _, part := range strings.Split(raw, ",") {
		days, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || days <= 0 {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidHorizons,
				"horizons must be positive day counts", err)
		}
		horizons = append(horizons, days)
	}
	return horizons, nil
}

func (s *Server) handleRiskByDate(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := types.ParseDate(date); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"date must be YYYY-MM-DD", err))
		return
	}
	s.respondRiskForDate(w, r, date)
}

func (s *Server) respondRiskForDate(w http.ResponseWriter, r *http.Request, date string) {
	snap, err := s.cfg.Snapshots.GetRiskDaily(r.Context(), types.GetUserID(r.Context()), date)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: snap})
}

// --- nudges ---

func (s *Server) handleNudgeToday(w http.ResponseWriter, r *http.Request) {
	n, err := s.cfg.Nudges.GetDailyNudge(r.Context(), types.GetUserID(r.Context()), s.localToday(r))
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: n})
}

type nudgeStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleNudgeStatus(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := types.ParseDate(date); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"date must be YYYY-MM-DD", err))
		return
	}

	var req nudgeStatusRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	status := types.NudgeStatus(req.Status)
	switch status {
	case types.NudgePending, types.NudgeDone, types.NudgeSnoozed:
	default:
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidStatus,
			"status must be pending, done, or snoozed", nil))
		return
	}

	userID := types.GetUserID(r.Context())
	if err := s.cfg.Nudges.UpdateStatus(r.Context(), userID, date, status); err != nil {
		Error(w, r, err)
		return
	}

	n, err := s.cfg.Nudges.GetDailyNudge(r.Context(), userID, date)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: n})
}

// --- weekly summary ---

type computeWeeklyRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleComputeWeekly(w http.ResponseWriter, r *http.Request) {
	// The date is optional; an absent body means "summarize through today".
	var req computeWeeklyRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			Error(w, r, err)
			return
		}
	}
	date := req.Date
	if date == "" {
		date = s.localToday(r)
	}
	end, err := types.ParseDate(date)
	if err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"date must be YYYY-MM-DD", err))
		return
	}

	// Recompute the trailing week of daily snapshots first so the summary
	// reflects current measurements, not stale runs. A single missing day is
	// tolerable; the weekly engine handles sparse series.
	userID := types.GetUserID(r.Context())
	for i := 6; i >= 0; i-- {
		day := end.AddDate(0, 0, -i).Format(types.DateLayout)
		if _, err := s.cfg.Risk.ComputeForUser(r.Context(), userID, day); err != nil {
			s.cfg.Logger.WarnContext(r.Context(), "trailing daily recompute failed",
				"user_id", userID, "as_of_date", day, "error", err)
		}
	}

	summary, err := s.cfg.Weekly.ComputeWeekly(r.Context(), userID, date)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: summary})
}

func (s *Server) handleGetWeekly(w http.ResponseWriter, r *http.Request) {
	today, err := types.ParseDate(s.localToday(r))
	if err != nil {
		Error(w, r, err)
		return
	}
	weekStart := types.WeekStart(today).Format(types.DateLayout)

	summary, err := s.cfg.Weekly.GetWeeklySummary(r.Context(), types.GetUserID(r.Context()), weekStart)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: summary})
}

// --- scheduled jobs ---

type dailyRiskJobRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleDailyRiskJob(w http.ResponseWriter, r *http.Request) {
	// An empty body means "run for today"; a date replays that day for the
	// whole cohort.
	var req dailyRiskJobRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			Error(w, r, err)
			return
		}
	}

	var (
		summary risk.RunSummary
		err     error
	)
	if req.Date != "" {
		summary, err = s.cfg.Runner.RunForDate(r.Context(), req.Date)
	} else {
		summary, err = s.cfg.Runner.RunDaily(r.Context())
	}
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: summary})
}
