package web

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"staycal/internal/availability"
	"staycal/internal/booking"
	"staycal/internal/calsync"
	"staycal/internal/config"
	"staycal/internal/feed"
	appLog "staycal/internal/log"
	"staycal/internal/session"
)

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Calendar *availability.Calendar
	Feed     *feed.Loader
	Bookings *booking.Service
	Syncs    *calsync.Service
	Profiles session.ProfileLookup
}

// Server provides the public booking API, the published occupancy feed
// and the owner dashboard API.
type Server struct {
	cfg     *config.Config
	deps    Deps
	mux     *http.ServeMux
	limiter *ipLimiter
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		mux:     http.NewServeMux(),
		limiter: newIPLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := s.identityMiddleware(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /export.ics", s.handleExport)

	// Guest API.
	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.Handle("POST /api/bookings", s.rateLimited(http.HandlerFunc(s.handleReserve)))
	s.mux.HandleFunc("GET /api/bookings/mine", s.handleMyBooking)

	// Owner dashboard API.
	s.mux.HandleFunc("GET /api/bookings", s.owner(s.handleListBookings))
	s.mux.HandleFunc("GET /api/bookings/day", s.owner(s.handleBookingsOn))
	s.mux.HandleFunc("PATCH /api/bookings/{id}/status", s.owner(s.handleUpdateStatus))
	s.mux.HandleFunc("GET /api/dashboard/stats", s.owner(s.handleStats))

	s.mux.HandleFunc("POST /api/calendar/reload", s.owner(s.handleReload))
	s.mux.HandleFunc("POST /api/calendar/upload", s.owner(s.handleUpload))
	s.mux.HandleFunc("POST /api/calendar/availability", s.owner(s.handleAvailability))
	s.mux.HandleFunc("POST /api/calendar/block", s.owner(s.handleBlock))
	s.mux.HandleFunc("POST /api/calendar/notes", s.owner(s.handleNotes))
	s.mux.HandleFunc("GET /api/calendar/selection", s.owner(s.handleSelection))

	s.mux.HandleFunc("GET /api/syncs", s.owner(s.handleListSyncs))
	s.mux.HandleFunc("POST /api/syncs", s.owner(s.handleAddSync))
	s.mux.HandleFunc("DELETE /api/syncs/{id}", s.owner(s.handleRemoveSync))
	s.mux.HandleFunc("POST /api/syncs/{id}/sync", s.owner(s.handleSyncNow))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// identityMiddleware turns the gateway's identity header into a session
// identity. Requests without it stay anonymous.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	header := s.cfg.IdentityHeader
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid := strings.TrimSpace(r.Header.Get(header)); uid != "" {
			id := session.Identity{UserID: uid, Email: strings.TrimSpace(r.Header.Get("X-User-Email"))}
			r = r.WithContext(session.WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// owner wraps h so it only runs for a caller whose profile is flagged as
// owner at request time.
func (s *Server) owner(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := session.RequireOwner(r.Context(), s.deps.Profiles); err != nil {
			writeErr(w, err)
			return
		}
		h(w, r)
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health and /export.ics
// with HTTP Basic Auth. The feed stays open for third-party importers.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/export.ics" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="staycal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
