package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"staycal/internal/availability"
	"staycal/internal/booking"
	"staycal/internal/calsync"
	"staycal/internal/config"
	"staycal/internal/feed"
	"staycal/internal/ics"
	"staycal/internal/model"
	"staycal/internal/store"
)

type stubFetcher struct {
	body []byte
	err  error
}

func (f *stubFetcher) FetchOne(_ context.Context, src ics.Source) (ics.FetchResult, error) {
	if f.err != nil {
		return ics.FetchResult{}, f.err
	}
	return ics.FetchResult{Source: src, Body: f.body}, nil
}

type testEnv struct {
	handler http.Handler
	cal     *availability.Calendar
	fetcher *stubFetcher
	store   *store.Store
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "staycal.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	owner := &model.Profile{ID: "owner", IsOwner: true}
	if err := st.UpsertProfile(context.Background(), owner); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertProfile(context.Background(), &model.Profile{ID: "guest"}); err != nil {
		t.Fatal(err)
	}

	cal := availability.NewCalendar(time.UTC)
	fetcher := &stubFetcher{body: []byte("BEGIN:VEVENT\nDTSTART:20240601\nDTEND:20240603\nEND:VEVENT\n")}
	loader := feed.NewLoader(fetcher, ics.Source{ID: "main", URL: "./export.ics"}, cal, ics.ParseOptions{})

	bookings := booking.NewService(st, cal, nil, booking.Options{
		PricePerNight: cfg.PricePerNight,
		Currency:      cfg.Currency,
		MaxNights:     cfg.MaxNights,
		Now:           func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
	})
	syncs := calsync.NewService(st, nil, cal)

	srv := NewServer(cfg, Deps{
		Calendar: cal,
		Feed:     loader,
		Bookings: bookings,
		Syncs:    syncs,
		Profiles: st,
	})
	return &testEnv{handler: srv.Handler(), cal: cal, fetcher: fetcher, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestBasicAuthSkipsHealthAndExport(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})

	for _, path := range []string{"/health", "/export.ics"} {
		if rec := env.do(t, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Fatalf("%s = %d, want open", path, rec.Code)
		}
	}
	if rec := env.do(t, http.MethodGet, "/api/calendar", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("calendar without credentials = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/calendar", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("calendar with credentials = %d", rec.Code)
	}
}

func TestOwnerRoutesRequireOwnerFlag(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		user string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"guest", http.StatusForbidden},
		{"stranger", http.StatusForbidden},
		{"owner", http.StatusOK},
	}
	for _, tc := range cases {
		if rec := env.do(t, http.MethodGet, "/api/bookings", tc.user, ""); rec.Code != tc.want {
			t.Fatalf("user %q: status = %d, want %d", tc.user, rec.Code, tc.want)
		}
	}
}

func TestOwnerCheckDatabaseFailureIsServerError(t *testing.T) {
	env := newTestEnv(t, nil)
	_ = env.store.Close()

	if rec := env.do(t, http.MethodGet, "/api/bookings", "owner", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("owner check on a closed database = %d, want 500", rec.Code)
	}
}

func TestCalendarHidesNotesFromGuests(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/calendar/notes", "owner", `{"from":"2024-06-10","to":"2024-06-11","note":"  cleaning  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("notes = %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/calendar?from=2024-06-10&to=2024-06-10", "guest", "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "cleaning") {
		t.Fatalf("guest view leaked note: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/calendar?from=2024-06-10&to=2024-06-10", "owner", "")
	var resp struct {
		Days []availability.DayState `json:"days"`
		Feed *feed.Status            `json:"feed"`
	}
	decode(t, rec, &resp)
	if len(resp.Days) != 1 || resp.Days[0].Note != "cleaning" {
		t.Fatalf("owner view = %+v", resp.Days)
	}
	if resp.Feed == nil || resp.Feed.State != feed.StateNeverLoaded {
		t.Fatalf("feed status = %+v", resp.Feed)
	}

	if rec := env.do(t, http.MethodGet, "/api/calendar?from=2024-06-10&to=2024-06-01", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("reversed window = %d", rec.Code)
	}
}

func TestAvailabilityBlockAndSelection(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/calendar/availability", "owner", `{"from":"2024-06-10","to":"2024-06-12","available":false}`)
	var upd map[string]int
	decode(t, rec, &upd)
	if upd["updated"] != 3 {
		t.Fatalf("updated = %v", upd)
	}

	rec = env.do(t, http.MethodPost, "/api/calendar/availability", "owner", `{"from":"2024-06-10","available":true}`)
	decode(t, rec, &upd)
	if upd["updated"] != 0 {
		t.Fatalf("incomplete selection must be a no-op, got %v", upd)
	}

	rec = env.do(t, http.MethodGet, "/api/calendar/selection?from=2024-06-09&to=2024-06-10", "owner", "")
	var sel struct {
		Available bool `json:"available"`
		Disabled  bool `json:"disabled"`
		Days      int  `json:"days"`
	}
	decode(t, rec, &sel)
	if sel.Available || !sel.Disabled || sel.Days != 2 {
		t.Fatalf("selection = %+v", sel)
	}

	rec = env.do(t, http.MethodPost, "/api/calendar/block", "owner", `{"from":"2024-06-20","to":"2024-06-21"}`)
	if rec.Code != http.StatusOK || !env.cal.IsDisabled("2024-06-21") {
		t.Fatalf("block = %d %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodPost, "/api/calendar/block", "owner", `{"from":"June 20"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad day = %d", rec.Code)
	}
}

func TestReserveFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	form := `{"guest_name":"Ana","guest_email":"ana@example.com","check_in":"2024-06-10","check_out":"2024-06-13","number_of_guests":2}`

	if rec := env.do(t, http.MethodPost, "/api/bookings", "", form); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous reserve = %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/bookings", "guest", form)
	if rec.Code != http.StatusCreated {
		t.Fatalf("reserve = %d %s", rec.Code, rec.Body.String())
	}
	var res booking.Result
	decode(t, rec, &res)
	if res.Nights != 3 || res.Booking.TotalPrice != 1500 {
		t.Fatalf("result = %+v", res)
	}

	if rec := env.do(t, http.MethodPost, "/api/bookings", "guest", form); rec.Code != http.StatusConflict {
		t.Fatalf("double booking = %d", rec.Code)
	}
	bad := strings.Replace(form, `"number_of_guests":2`, `"number_of_guests":0`, 1)
	if rec := env.do(t, http.MethodPost, "/api/bookings", "guest", bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid form = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/bookings/mine", "guest", "")
	var mine model.Booking
	decode(t, rec, &mine)
	if mine.ID != res.Booking.ID {
		t.Fatalf("mine = %+v", mine)
	}

	rec = env.do(t, http.MethodPatch, "/api/bookings/"+res.Booking.ID+"/status", "owner", `{"status":"confirmed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPatch, "/api/bookings/nope/status", "owner", `{"status":"confirmed"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("missing booking = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/dashboard/stats", "owner", "")
	var st booking.Stats
	decode(t, rec, &st)
	if st.TotalBookings != 1 || st.ConfirmedBookings != 1 || st.Revenue != 1500 {
		t.Fatalf("stats = %+v", st)
	}

	rec = env.do(t, http.MethodGet, "/api/bookings/day?date=2024-06-13", "owner", "")
	var onDay []model.Booking
	decode(t, rec, &onDay)
	if len(onDay) != 1 {
		t.Fatalf("check-out day bookings = %+v", onDay)
	}
}

func TestReserveRejectsOverlongStay(t *testing.T) {
	env := newTestEnv(t, nil)
	form := `{"guest_name":"Ana","guest_email":"ana@example.com","check_in":"2024-06-10","check_out":"9999-12-31","number_of_guests":2}`

	if rec := env.do(t, http.MethodPost, "/api/bookings", "guest", form); rec.Code != http.StatusBadRequest {
		t.Fatalf("overlong stay = %d %s", rec.Code, rec.Body.String())
	}
	if env.cal.Day("2024-06-11").Booked {
		t.Fatal("rejected stay was projected onto the calendar")
	}
}

func TestReserveIsRateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{PerMinute: 1, Burst: 1}
	})

	if rec := env.do(t, http.MethodPost, "/api/bookings", "guest", `{}`); rec.Code == http.StatusTooManyRequests {
		t.Fatal("first request limited")
	}
	if rec := env.do(t, http.MethodPost, "/api/bookings", "guest", `{}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
}

func TestReloadUploadAndExport(t *testing.T) {
	env := newTestEnv(t, nil)

	env.fetcher.err = ics.ErrFeedNotFound
	rec := env.do(t, http.MethodPost, "/api/calendar/reload", "owner", "")
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), feed.LabelNotFound) {
		t.Fatalf("reload of missing feed = %d %s", rec.Code, rec.Body.String())
	}

	env.fetcher.err = nil
	if rec := env.do(t, http.MethodPost, "/api/calendar/reload", "owner", ""); rec.Code != http.StatusOK {
		t.Fatalf("reload = %d %s", rec.Code, rec.Body.String())
	}
	if !env.cal.IsDisabled("2024-06-02") {
		t.Fatal("reloaded feed not applied")
	}

	rec = env.do(t, http.MethodPost, "/api/calendar/upload", "owner", "\xff\xfe\xfd")
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), feed.LabelUploadRejected) {
		t.Fatalf("binary upload = %d %s", rec.Code, rec.Body.String())
	}
	if !env.cal.IsDisabled("2024-06-02") {
		t.Fatal("rejected upload must keep prior intervals")
	}

	rec = env.do(t, http.MethodPost, "/api/calendar/upload", "owner", "BEGIN:VEVENT\nDTSTART:20240801\nDTEND:20240802\nEND:VEVENT\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("upload = %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/export.ics", "", "")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content type = %q", ct)
	}
	ivs, err := ics.ParseFeed(rec.Body, time.UTC)
	if err != nil {
		t.Fatalf("export does not parse: %v", err)
	}
	if len(ivs) != 1 || ivs[0].Start.Format("2006-01-02") != "2024-08-01" || ivs[0].End.Format("2006-01-02") != "2024-08-01" {
		t.Fatalf("exported intervals = %+v", ivs)
	}
}

func TestSyncEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/syncs", "owner", `{"platform":"airbnb","ical_url":"https://example.com/a.ics"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add = %d %s", rec.Code, rec.Body.String())
	}
	var entry model.CalendarSync
	decode(t, rec, &entry)

	if rec := env.do(t, http.MethodPost, "/api/syncs", "owner", `{"platform":"airbnb","ical_url":"nope"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid add = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/syncs/"+entry.ID+"/sync", "owner", "")
	var synced model.CalendarSync
	decode(t, rec, &synced)
	if rec.Code != http.StatusOK || synced.LastSyncedAt == nil {
		t.Fatalf("sync now = %d %+v", rec.Code, synced)
	}

	rec = env.do(t, http.MethodGet, "/api/syncs", "owner", "")
	var list []model.CalendarSync
	decode(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}

	if rec := env.do(t, http.MethodDelete, "/api/syncs/"+entry.ID, "owner", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/syncs/"+entry.ID, "owner", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d", rec.Code)
	}
}
