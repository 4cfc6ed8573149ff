package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"staycal/internal/availability"
	"staycal/internal/ics"
)

type stubFetcher struct {
	body []byte
	err  error
}

func (s *stubFetcher) FetchOne(_ context.Context, src ics.Source) (ics.FetchResult, error) {
	if s.err != nil {
		return ics.FetchResult{}, s.err
	}
	return ics.FetchResult{Source: src, Body: s.body}, nil
}

const goodFeed = "BEGIN:VEVENT\nDTSTART:20240601\nDTEND:20240604\nEND:VEVENT\n"

func newLoader(f Fetcher) (*Loader, *availability.Calendar) {
	cal := availability.NewCalendar(time.UTC)
	return NewLoader(f, ics.Source{ID: "main", URL: "./export.ics"}, cal, ics.ParseOptions{}), cal
}

func TestLoaderStartsNeverLoaded(t *testing.T) {
	l, _ := newLoader(&stubFetcher{})
	st := l.Status()
	if st.State != StateNeverLoaded || st.Label != LabelNeverLoaded {
		t.Fatalf("initial status = %+v", st)
	}
}

func TestLoaderReplacesIntervalsOnSuccess(t *testing.T) {
	f := &stubFetcher{body: []byte(goodFeed)}
	l, cal := newLoader(f)
	cal.BlockRange(availability.SelectedRange{From: "2024-01-01", To: "2024-01-02"})

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := len(cal.Intervals()); n != 1 {
		t.Fatalf("import must replace the whole set, got %d intervals", n)
	}
	st := l.Status()
	if st.State != StateLoaded || st.Intervals != 1 || st.LoadedAt == nil {
		t.Fatalf("status after load = %+v", st)
	}
}

func TestLoaderFailuresKeepPriorIntervals(t *testing.T) {
	f := &stubFetcher{body: []byte(goodFeed)}
	l, cal := newLoader(f)
	if err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		err   error
		state State
		label string
	}{
		{fmtErr(ics.ErrFeedNotFound), StateNotFound, LabelNotFound},
		{fmtErr(ics.ErrFeedUnreadable), StateUnreadable, LabelUnreadable},
	}
	for _, tc := range cases {
		f.err = tc.err
		if err := l.Load(context.Background()); !errors.Is(err, tc.err) {
			t.Fatalf("Load error = %v, want %v", err, tc.err)
		}
		st := l.Status()
		if st.State != tc.state || st.Label != tc.label {
			t.Fatalf("status = %+v, want %s/%s", st, tc.state, tc.label)
		}
		if st.Intervals != 1 || st.LoadedAt == nil {
			t.Fatalf("failure must keep last good load info: %+v", st)
		}
		if len(cal.Intervals()) != 1 {
			t.Fatal("failure must leave intervals untouched")
		}
	}
}

func TestLoaderRemoteFailureKeepsBlocksAndLabels(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(goodFeed))
	}))

	cal := availability.NewCalendar(time.UTC)
	src := ics.Source{ID: "main", URL: srv.URL + "/export.ics"}
	l := NewLoader(ics.NewFetcher(t.TempDir(), srv.Client()), src, cal, ics.ParseOptions{})

	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("first load: %v", err)
	}
	cal.BlockRange(availability.SelectedRange{From: "2024-03-01", To: "2024-03-05"})

	status = http.StatusNotFound
	if err := l.Load(context.Background()); !errors.Is(err, ics.ErrFeedNotFound) {
		t.Fatalf("404 reload: want ErrFeedNotFound, got %v", err)
	}
	if st := l.Status(); st.State != StateNotFound || st.Label != LabelNotFound {
		t.Fatalf("status after 404 = %+v", st)
	}
	if n := len(cal.Intervals()); n != 2 {
		t.Fatalf("404 reload replaced intervals: got %d, want 2", n)
	}
	if !cal.Day("2024-03-03").Occupied {
		t.Fatal("manual block lost after 404 reload")
	}

	srv.Close()
	if err := l.Load(context.Background()); !errors.Is(err, ics.ErrFeedUnreadable) {
		t.Fatalf("unreachable reload: want ErrFeedUnreadable, got %v", err)
	}
	if st := l.Status(); st.State != StateUnreadable || st.Label != LabelUnreadable {
		t.Fatalf("status after transport failure = %+v", st)
	}
	if n := len(cal.Intervals()); n != 2 {
		t.Fatalf("unreachable reload replaced intervals: got %d, want 2", n)
	}
}

func TestLoaderRejectsBinaryUpload(t *testing.T) {
	l, cal := newLoader(&stubFetcher{})
	cal.BlockRange(availability.SelectedRange{From: "2024-01-01", To: "2024-01-02"})

	err := l.LoadBytes([]byte{0xff, 0xfe, 0xfd})
	if !errors.Is(err, ics.ErrFeedUnreadable) {
		t.Fatalf("LoadBytes error = %v", err)
	}
	if st := l.Status(); st.State != StateRejected || st.Label != LabelUploadRejected {
		t.Fatalf("status = %+v", st)
	}
	if len(cal.Intervals()) != 1 {
		t.Fatal("rejected upload must leave intervals untouched")
	}

	if err := l.LoadBytes([]byte(goodFeed)); err != nil {
		t.Fatalf("good upload: %v", err)
	}
	if st := l.Status(); st.State != StateLoaded || st.Origin != "upload" {
		t.Fatalf("status after upload = %+v", st)
	}
}

func TestLoaderStrictMalformed(t *testing.T) {
	body := "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:x\r\nDTSTART:20240601\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
	cal := availability.NewCalendar(time.UTC)
	l := NewLoader(&stubFetcher{body: []byte(body)}, ics.Source{URL: "x.ics"}, cal, ics.ParseOptions{Strict: true})

	if err := l.Load(context.Background()); !errors.Is(err, ics.ErrFeedMalformed) {
		t.Fatalf("want ErrFeedMalformed, got %v", err)
	}
	if st := l.Status(); st.Label != LabelMalformed {
		t.Fatalf("label = %q", st.Label)
	}
}

func fmtErr(base error) error {
	return errors.Join(base, errors.New("detail"))
}
