package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/puffquest/puffquest/internal/app/engagement"
	"github.com/puffquest/puffquest/internal/app/tracking"
	"github.com/puffquest/puffquest/internal/domain"
)

// MaxTotalsDays bounds the totals window a client may request.
const MaxTotalsDays = 366

// ─── Request helpers ────────────────────────────────────────────────────────

// decodeBody reads an optional JSON body into v. An empty body leaves v as is.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}

// user resolves the {id} path parameter to a stored user.
func (s *Server) user(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid user id")
		return domain.User{}, false
	}
	u, err := s.svc.Accounts.GetUser(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return domain.User{}, false
	}
	return u, true
}

// day parses the named "YYYY-MM-DD" query parameter, defaulting to today.
func (s *Server) day(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return s.svc.Stats.Today(), nil
	}
	d, err := s.svc.Stats.Calendar().ParseDay(v)
	if err != nil {
		return time.Time{}, domain.NewValidationError(name, "must be YYYY-MM-DD")
	}
	return d, nil
}

// entryType parses the "type" query parameter, defaulting to the user's unit.
func entryType(r *http.Request, u domain.User) (domain.EntryType, error) {
	v := r.URL.Query().Get("type")
	if v == "" {
		return u.EntryType(), nil
	}
	typ, err := domain.ParseEntryType(v)
	if err != nil {
		return "", domain.NewValidationError("type", "must be cig or puff")
	}
	return typ, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

// ─── Health & level ─────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.svc.Health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.svc.Health.Statuses(),
	})
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	xp, err := strconv.ParseInt(r.URL.Query().Get("xp"), 10, 64)
	if err != nil || xp < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "xp must be a non-negative integer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"level":    engagement.LevelProgress(xp),
		"progress": engagement.ProgressPct(xp),
	})
}

// ─── Users ──────────────────────────────────────────────────────────────────

func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req domain.OnboardingData
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	u, err := s.svc.Accounts.CompleteOnboarding(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Accounts.CurrentUser(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "not_found", "no user onboarded")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	if err := s.svc.Accounts.Reset(r.Context(), u.ID); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Entries ────────────────────────────────────────────────────────────────

type addEntryRequest struct {
	Type string     `json:"type,omitempty"`
	Cost *float64   `json:"cost,omitempty"`
	At   *time.Time `json:"at,omitempty"`
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid user id")
		return
	}
	var body addEntryRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	req := tracking.EntryRequest{Type: domain.EntryType(body.Type), Cost: body.Cost}
	if body.At != nil {
		req.At = *body.At
	}
	rec, err := s.svc.Tracking.AddEntry(r.Context(), id, req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	day, err := s.day(r, "date")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	entries, err := s.svc.Tracking.EntriesForDay(r.Context(), u, day)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":     s.svc.Stats.Calendar().DayKey(day),
		"entries": entries,
	})
}

// ─── Stats ──────────────────────────────────────────────────────────────────

func (s *Server) handleDayCount(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	day, err := s.day(r, "date")
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	typ, err := entryType(r, u)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	n, err := s.svc.Stats.CountForDay(r.Context(), u, day, typ)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":    s.svc.Stats.Calendar().DayKey(day),
		"type":   typ,
		"count":  n,
		"limit":  u.DailyLimit,
		"status": domain.StatusFor(n, u.DailyLimit),
	})
}

type dayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	days, err := intParam(r, "days", 30)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if days > MaxTotalsDays {
		s.writeFailure(w, r, domain.NewValidationError("days", "must be at most "+strconv.Itoa(MaxTotalsDays)))
		return
	}
	typ, err := entryType(r, u)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	totals, err := s.svc.Stats.TotalsForLastDays(r.Context(), u, days, typ)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	cal := s.svc.Stats.Calendar()
	out := make([]dayCount, len(totals))
	for i, t := range totals {
		out[i] = dayCount{Day: cal.DayKey(t.Day), Count: t.Count}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":   typ,
		"total":  totals.Sum(),
		"totals": out,
	})
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	week, err := s.svc.Stats.WeekSummary(r.Context(), u)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	u, ok := s.user(w, r)
	if !ok {
		return
	}
	day := s.svc.Stats.Today()
	if v := r.URL.Query().Get("month"); v != "" {
		d, err := s.svc.Stats.Calendar().ParseDay(v + "-01")
		if err != nil {
			s.writeFailure(w, r, domain.NewValidationError("month", "must be YYYY-MM"))
			return
		}
		day = d
	}
	month, err := s.svc.Stats.Month(r.Context(), u, day)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, month)
}

// ─── Progression ────────────────────────────────────────────────────────────

type recalcRequest struct {
	Date string `json:"date,omitempty"`
}

func (s *Server) handleRecalc(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid user id")
		return
	}
	var body recalcRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	cal := s.svc.Stats.Calendar()
	day := cal.AddDays(s.svc.Stats.Today(), -1)
	if body.Date != "" {
		d, err := cal.ParseDay(body.Date)
		if err != nil {
			s.writeFailure(w, r, domain.NewValidationError("date", "must be YYYY-MM-DD"))
			return
		}
		if !d.Before(s.svc.Stats.Today()) {
			s.writeFailure(w, r, domain.NewValidationError("date", "must be a finished day"))
			return
		}
		day = d
	}

	// Unscored days before the requested one are scored first, in order.
	results, err := s.svc.Game.RecalcThrough(r.Context(), id, day)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid user id")
		return
	}
	snap, err := s.svc.Game.Progress(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid user id")
		return
	}
	limit, err := intParam(r, "limit", engagement.DefaultRewardLimit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	rewards, err := s.svc.Game.Rewards(r.Context(), id, limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if rewards == nil {
		rewards = []domain.RewardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rewards": rewards})
}
