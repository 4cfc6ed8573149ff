package web

import (
	"errors"
	"net/http"

	"staycal/internal/availability"
	"staycal/internal/booking"
	"staycal/internal/model"
)

// handleReserve creates a pending booking for the caller and returns the
// checkout redirect when payments are enabled.
func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req booking.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.deps.Bookings.Reserve(r.Context(), req)
	if err != nil {
		if errors.Is(err, booking.ErrPayment) {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "booking": res.Booking})
			return
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleMyBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Bookings.Mine(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Bookings.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleBookingsOn lists the bookings shown on a dashboard day cell.
//
// GET /api/bookings/day?date=2024-06-04
func (s *Server) handleBookingsOn(w http.ResponseWriter, r *http.Request) {
	day, err := availability.ParseDayKey(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.deps.Bookings.BookingsOn(r.Context(), day)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.BookingStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.deps.Bookings.UpdateStatus(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Bookings.Stats(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
