package ics

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	ical "github.com/arran4/golang-ical"

	"staycal/internal/availability"
	appLog "staycal/internal/log"
)

var localStampRe = regexp.MustCompile(`^\d{8}T\d{6}$`)

// StrictOptions configures ParseStrict.
type StrictOptions struct {
	Location *time.Location

	// RangeStart / RangeEnd bound RRULE expansion. Zero values default to
	// one year back and HorizonDays ahead of now.
	RangeStart  time.Time
	RangeEnd    time.Time
	HorizonDays int

	MaxOccurrencesPerEvent int
}

// ParsedEvent is a VEVENT reduced to what busy-interval projection needs.
type ParsedEvent struct {
	UID string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, set on overridden instances
}

// ParseStrict parses a feed with the full iCalendar parser. Unlike
// ParseFeed, an event without DTSTART or DTEND, or with a value it cannot
// read, fails the whole parse. Recurring events are expanded.
func ParseStrict(body []byte, opts StrictOptions) ([]availability.BusyInterval, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("%w: not valid UTF-8 text", ErrFeedUnreadable)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []availability.BusyInterval{}, nil
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedMalformed, err)
	}

	events := make([]ParsedEvent, 0)
	for i, ve := range cal.Events() {
		ev, err := parseVEvent(ve, opts.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrFeedMalformed, i, err)
		}
		events = append(events, ev)
	}

	out, err := expandEvents(events, opts)
	if err != nil {
		return nil, err
	}

	appLog.Debug("strict feed parse completed", "events", len(events), "intervals", len(out))
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, fmt.Errorf("uid %q: missing DTSTART", out.UID)
	}
	endProp := ve.GetProperty(ical.ComponentPropertyDtEnd)
	if endProp == nil {
		return out, fmt.Errorf("uid %q: missing DTEND", out.UID)
	}

	start, allDay, err := propertyTime(startProp.Value, startProp.ICalParameters, loc)
	if err != nil {
		return out, fmt.Errorf("uid %q: DTSTART: %w", out.UID, err)
	}
	end, _, err := propertyTime(endProp.Value, endProp.ICalParameters, loc)
	if err != nil {
		return out, fmt.Errorf("uid %q: DTEND: %w", out.UID, err)
	}
	out.Start, out.End, out.AllDay = start, end, allDay

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, _, err := propertyTime(part, p.ICalParameters, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, _, err := propertyTime(p.Value, p.ICalParameters, loc); err == nil {
			out.Recurrence = &t
		}
	}

	return out, nil
}

// propertyTime reads a DATE or DATE-TIME value, honouring a TZID
// parameter for floating local times.
func propertyTime(v string, params map[string][]string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)

	zone := loc
	if tz, ok := params["TZID"]; ok && len(tz) > 0 {
		if l, err := time.LoadLocation(tz[0]); err == nil {
			zone = l
		}
	}

	switch {
	case dateOnlyRe.MatchString(v):
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	case utcStampRe.MatchString(v):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	case localStampRe.MatchString(v):
		t, err := time.ParseInLocation("20060102T150405", v, zone)
		return t, false, err
	}
	return time.Time{}, false, fmt.Errorf("unsupported value %q", v)
}
