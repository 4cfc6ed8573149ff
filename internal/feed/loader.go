package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"staycal/internal/availability"
	"staycal/internal/ics"
	appLog "staycal/internal/log"
)

// State classifies the outcome of the latest load attempt.
type State string

const (
	StateNeverLoaded State = "never_loaded"
	StateLoaded      State = "loaded"
	StateNotFound    State = "not_found"
	StateUnreadable  State = "unreadable"
	StateRejected    State = "rejected"
)

// Operator-facing labels, one per failure class.
const (
	LabelNeverLoaded    = "no feed loaded yet"
	LabelNotFound       = "feed not found"
	LabelUnreadable     = "failed to read feed"
	LabelUploadRejected = "failed to process uploaded feed"
	LabelMalformed      = "feed rejected: malformed event"
)

// Status describes the last load attempt. On failure, Intervals and
// LoadedAt still describe the last successful load.
type Status struct {
	State       State      `json:"state"`
	Label       string     `json:"label,omitempty"`
	Origin      string     `json:"origin,omitempty"`
	Intervals   int        `json:"intervals"`
	LoadedAt    *time.Time `json:"loaded_at,omitempty"`
	AttemptedAt *time.Time `json:"attempted_at,omitempty"`
	Err         error      `json:"-"`
}

// Fetcher is the part of ics.Fetcher the loader needs.
type Fetcher interface {
	FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// Loader imports the busy feed into a calendar. A load is all-or-nothing:
// the calendar's interval set is replaced only after the whole body
// parsed; any failure leaves it untouched and records a label.
type Loader struct {
	fetcher Fetcher
	source  ics.Source
	cal     *availability.Calendar
	opts    ics.ParseOptions

	mu     sync.Mutex
	status Status
}

func NewLoader(f Fetcher, src ics.Source, cal *availability.Calendar, opts ics.ParseOptions) *Loader {
	if opts.Location == nil {
		opts.Location = cal.Location()
	}
	return &Loader{
		fetcher: f,
		source:  src,
		cal:     cal,
		opts:    opts,
		status:  Status{State: StateNeverLoaded, Label: LabelNeverLoaded},
	}
}

// Load fetches the configured source and replaces the calendar intervals.
// Concurrent loads are not sequenced; the last one to finish wins.
func (l *Loader) Load(ctx context.Context) error {
	res, err := l.fetcher.FetchOne(ctx, l.source)
	if err != nil {
		state, label := StateUnreadable, LabelUnreadable
		if errors.Is(err, ics.ErrFeedNotFound) {
			state, label = StateNotFound, LabelNotFound
		}
		l.fail(state, label, "source", err)
		return err
	}
	return l.apply(res.Body, "source", false)
}

// LoadBytes imports an operator-supplied feed body.
func (l *Loader) LoadBytes(body []byte) error {
	return l.apply(body, "upload", true)
}

// Status returns the outcome of the latest attempt.
func (l *Loader) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *Loader) apply(body []byte, origin string, upload bool) error {
	ivs, err := ics.Parse(body, l.opts)
	if err != nil {
		state, label := StateUnreadable, LabelUnreadable
		switch {
		case upload:
			state, label = StateRejected, LabelUploadRejected
		case errors.Is(err, ics.ErrFeedMalformed):
			state, label = StateRejected, LabelMalformed
		}
		l.fail(state, label, origin, err)
		return err
	}

	now := time.Now()

	l.mu.Lock()
	l.cal.ReplaceIntervals(ivs)
	l.status = Status{
		State:       StateLoaded,
		Origin:      origin,
		Intervals:   len(ivs),
		LoadedAt:    &now,
		AttemptedAt: &now,
	}
	l.mu.Unlock()

	appLog.Info("feed loaded", "origin", origin, "intervals", len(ivs), "strict", l.opts.Strict)
	return nil
}

func (l *Loader) fail(state State, label, origin string, err error) {
	now := time.Now()

	l.mu.Lock()
	prev := l.status
	l.status = Status{
		State:       state,
		Label:       label,
		Origin:      origin,
		Intervals:   prev.Intervals,
		LoadedAt:    prev.LoadedAt,
		AttemptedAt: &now,
		Err:         err,
	}
	l.mu.Unlock()

	appLog.Error("feed load failed", err, "origin", origin, "state", string(state))
}
