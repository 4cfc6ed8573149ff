package web

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"staycal/internal/availability"
	"staycal/internal/feed"
	"staycal/internal/ics"
	"staycal/internal/session"
)

const (
	defaultWindowDays = 62
	maxWindowDays     = 400
	maxUploadBytes    = 10 << 20
)

// publicDay is what guests see: no notes, no raw overrides.
type publicDay struct {
	Day      availability.DayKey `json:"day"`
	Occupied bool                `json:"occupied"`
	Disabled bool                `json:"disabled"`
}

type calendarResponse struct {
	Timezone string              `json:"timezone"`
	From     availability.DayKey `json:"from"`
	To       availability.DayKey `json:"to"`
	Days     any                 `json:"days"`
	Feed     *feed.Status        `json:"feed,omitempty"`
}

// handleCalendar returns per-day state for a window.
//
// GET /api/calendar?from=2024-06-01&to=2024-07-31
//   - from: first day (default today)
//   - to:   last day (default from + 62 days)
//
// Owners get the full day state and the feed status.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.windowParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	days := s.deps.Calendar.Window(from, to)
	resp := calendarResponse{
		Timezone: s.deps.Calendar.Location().String(),
		From:     from,
		To:       to,
	}

	if _, err := session.RequireOwner(r.Context(), s.deps.Profiles); err == nil {
		st := s.deps.Feed.Status()
		resp.Days = days
		resp.Feed = &st
	} else {
		pub := make([]publicDay, 0, len(days))
		for _, d := range days {
			pub = append(pub, publicDay{Day: d.Day, Occupied: d.Occupied, Disabled: d.Disabled})
		}
		resp.Days = pub
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) windowParams(q url.Values) (availability.DayKey, availability.DayKey, error) {
	from, err := optionalDay(q.Get("from"))
	if err != nil {
		return "", "", err
	}
	if from.IsZero() {
		from = s.deps.Calendar.Today()
	}
	to, err := optionalDay(q.Get("to"))
	if err != nil {
		return "", "", err
	}
	if to.IsZero() {
		to = from.AddDays(defaultWindowDays)
	}
	if to < from {
		return "", "", fmt.Errorf("to %s is before from %s", to, from)
	}
	if from.DaysUntil(to) > maxWindowDays {
		return "", "", fmt.Errorf("window exceeds %d days", maxWindowDays)
	}
	return from, to, nil
}

func optionalDay(s string) (availability.DayKey, error) {
	if s == "" {
		return "", nil
	}
	return availability.ParseDayKey(s)
}

// rangeBody is an operator selection; either end may be missing.
type rangeBody struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (b rangeBody) selection() (availability.SelectedRange, error) {
	from, err := optionalDay(b.From)
	if err != nil {
		return availability.SelectedRange{}, err
	}
	to, err := optionalDay(b.To)
	if err != nil {
		return availability.SelectedRange{}, err
	}
	return availability.SelectedRange{From: from, To: to}, nil
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		rangeBody
		Available *bool `json:"available"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Available == nil {
		writeError(w, http.StatusBadRequest, "available is required")
		return
	}
	sel, err := body.selection()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n := s.deps.Calendar.ApplyAvailability(sel, *body.Available)
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	var body rangeBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sel, err := body.selection()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"blocked": s.deps.Calendar.BlockRange(sel)})
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		rangeBody
		Note string `json:"note"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sel, err := body.selection()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n := s.deps.Calendar.SaveNote(sel, body.Note)
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// handleSelection answers the owner toggle: does the selection currently
// read available, and would any of its days block a booking.
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sel, err := rangeBody{From: q.Get("from"), To: q.Get("to")}.selection()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"from":      sel.From,
		"to":        sel.To,
		"complete":  sel.Complete(),
		"days":      len(sel.Days()),
		"available": s.deps.Calendar.SelectionAvailable(sel),
		"disabled":  s.deps.Calendar.RangeDisabled(sel),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Feed.Load(r.Context())
	st := s.deps.Feed.Status()
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": st.Label, "feed": st})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed": st})
}

// handleUpload imports a raw ICS body sent by the operator.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, feed.LabelUploadRejected)
		return
	}
	if err := s.deps.Feed.LoadBytes(body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": feed.LabelUploadRejected, "feed": s.deps.Feed.Status()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed": s.deps.Feed.Status()})
}

// handleExport publishes occupied nights as an iCalendar feed.
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	body := ics.Export(s.deps.Calendar.OccupiedIntervals(), ics.ExportOptions{
		Location: s.deps.Calendar.Location(),
		Now:      time.Now(),
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="export.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}
