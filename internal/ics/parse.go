package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"staycal/internal/availability"
	appLog "staycal/internal/log"
)

var (
	// ErrFeedNotFound means the feed source answered but had no feed
	// (non-OK HTTP status or missing file).
	ErrFeedNotFound = errors.New("feed not found")
	// ErrFeedUnreadable means the feed could not be fetched or decoded
	// into text.
	ErrFeedUnreadable = errors.New("feed unreadable")
	// ErrFeedMalformed is only returned by the strict parser.
	ErrFeedMalformed = errors.New("feed malformed")
)

var (
	dateOnlyRe  = regexp.MustCompile(`^\d{8}$`)
	utcStampRe  = regexp.MustCompile(`^\d{8}T\d{6}Z$`)
	localStamps = []string{
		time.RFC3339,
		"20060102T150405",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
)

// ParseOptions selects between the tolerant scanner and strict mode.
type ParseOptions struct {
	// Location defines calendar days and the zone of date-only values.
	Location *time.Location
	Strict   bool
	// HorizonDays bounds RRULE expansion in strict mode.
	HorizonDays int
}

// Parse decodes a feed body with the configured mode.
func Parse(body []byte, opts ParseOptions) ([]availability.BusyInterval, error) {
	if opts.Strict {
		return ParseStrict(body, StrictOptions{
			Location:    opts.Location,
			HorizonDays: opts.HorizonDays,
		})
	}
	return ParseFeed(bytes.NewReader(body), opts.Location)
}

// pendingEvent accumulates the two date fields of the event being read.
type pendingEvent struct {
	start, end       time.Time
	hasStart, hasEnd bool
}

// ParseFeed is the tolerant line scanner. It returns one interval per
// event carrying both DTSTART and DTEND, in feed order, with the feed's
// exclusive end moved back one day. Events with a missing or unparseable
// field are dropped without error; the only errors are an unreadable
// input or bytes that are not UTF-8 text. Strict mode reports bad events
// instead.
func ParseFeed(r io.Reader, loc *time.Location) ([]availability.BusyInterval, error) {
	if loc == nil {
		loc = time.Local
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnreadable, err)
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("%w: not valid UTF-8 text", ErrFeedUnreadable)
	}

	text := strings.TrimPrefix(string(body), "\ufeff")
	out := make([]availability.BusyInterval, 0)
	var cur pendingEvent
	dropped := 0

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, "BEGIN:VEVENT"):
			cur = pendingEvent{}
		case strings.HasPrefix(line, "DTSTART"):
			cur.start, cur.hasStart = parseFieldLine(line, loc)
		case strings.HasPrefix(line, "DTEND"):
			cur.end, cur.hasEnd = parseFieldLine(line, loc)
		case strings.HasPrefix(line, "END:VEVENT"):
			if cur.hasStart && cur.hasEnd {
				out = append(out, availability.FromExclusiveEnd(cur.start, cur.end))
			} else {
				dropped++
			}
			cur = pendingEvent{}
		}
	}

	if dropped > 0 {
		appLog.Debug("feed parse dropped incomplete events", "dropped", dropped, "kept", len(out))
	}
	return out, nil
}

// parseFieldLine extracts the value after the first colon of a
// "NAME;PARAMS:VALUE" line.
func parseFieldLine(line string, loc *time.Location) (time.Time, bool) {
	_, val, ok := strings.Cut(line, ":")
	if !ok {
		return time.Time{}, false
	}
	if i := strings.IndexByte(val, ':'); i >= 0 {
		val = val[:i]
	}
	return parseValue(strings.TrimSpace(val), loc)
}

// parseValue understands YYYYMMDD (midnight in loc) and YYYYMMDDTHHMMSSZ
// (UTC, decomposed positionally). Anything else gets a best-effort pass
// over a few common layouts and is rejected if none match.
func parseValue(v string, loc *time.Location) (time.Time, bool) {
	switch {
	case dateOnlyRe.MatchString(v):
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, err == nil
	case utcStampRe.MatchString(v):
		return time.Date(
			atoi(v[0:4]), time.Month(atoi(v[4:6])), atoi(v[6:8]),
			atoi(v[9:11]), atoi(v[11:13]), atoi(v[13:15]), 0, time.UTC,
		), true
	}

	for _, layout := range localStamps {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// atoi parses a run of ASCII digits already validated by a regexp.
func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
