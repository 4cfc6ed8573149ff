package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"staycal/internal/availability"
	appLog "staycal/internal/log"
)

const defaultMaxOccurrencesPerEvent = 5000

// expandEvents turns parsed events into busy intervals. Single events map
// one to one; RRULE events are expanded inside the options' window, with
// EXDATEs removed and instances replaced by their RECURRENCE-ID override
// (the override itself is emitted as a single event).
func expandEvents(events []ParsedEvent, opts StrictOptions) ([]availability.BusyInterval, error) {
	now := time.Now()
	if opts.RangeStart.IsZero() {
		opts.RangeStart = now.AddDate(-1, 0, 0)
	}
	if opts.RangeEnd.IsZero() {
		horizon := opts.HorizonDays
		if horizon <= 0 {
			horizon = 365
		}
		opts.RangeEnd = now.AddDate(0, 0, horizon)
	}
	if opts.RangeEnd.Before(opts.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if opts.MaxOccurrencesPerEvent <= 0 {
		opts.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	overridden := make(map[string][]time.Time)
	for _, ev := range events {
		if ev.Recurrence != nil {
			overridden[ev.UID] = append(overridden[ev.UID], *ev.Recurrence)
		}
	}

	out := make([]availability.BusyInterval, 0, len(events))
	for _, ev := range events {
		if ev.RawRRule == "" || ev.Recurrence != nil {
			out = append(out, availability.FromExclusiveEnd(ev.Start, ev.End))
			continue
		}
		ivs, err := expandRecurring(ev, overridden[ev.UID], opts)
		if err != nil {
			return nil, err
		}
		out = append(out, ivs...)
	}
	return out, nil
}

func expandRecurring(ev ParsedEvent, overrides []time.Time, opts StrictOptions) ([]availability.BusyInterval, error) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		return nil, errors.Join(ErrFeedMalformed, err)
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	occs := set.Between(
		opts.RangeStart.In(ev.Start.Location()),
		opts.RangeEnd.In(ev.Start.Location()),
		true,
	)
	if len(occs) > opts.MaxOccurrencesPerEvent {
		appLog.Error("expand: truncated occurrences for UID due to cap",
			errors.New("max occurrences reached"),
			"uid", ev.UID,
			"cap", opts.MaxOccurrencesPerEvent,
		)
		occs = occs[:opts.MaxOccurrencesPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	spanDays := availability.KeyOf(ev.Start, ev.Start.Location()).DaysUntil(availability.KeyOf(ev.End, ev.Start.Location()))

	out := make([]availability.BusyInterval, 0, len(occs))
	for _, occStart := range occs {
		if isOverridden(occStart, overrides) {
			continue
		}
		var occEnd time.Time
		if ev.AllDay {
			// Calendar-day span survives DST shifts that a duration would not.
			occEnd = occStart.AddDate(0, 0, spanDays)
		} else {
			occEnd = occStart.Add(dur)
		}
		out = append(out, availability.FromExclusiveEnd(occStart, occEnd))
	}
	return out, nil
}

func isOverridden(start time.Time, overrides []time.Time) bool {
	for _, rid := range overrides {
		if rid.Equal(start) {
			return true
		}
	}
	return false
}
