package availability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// DayState is everything the calendar knows about one day. Occupied,
// Unavailable and Note are computed independently; Disabled combines the
// first two for the booking picker.
type DayState struct {
	Day DayKey `json:"day"`

	// Occupied is true when the day lies in a busy interval (feed, manual
	// block, synced source) or is a booked night.
	Occupied bool `json:"occupied"`
	// Booked is true when a stored booking covers the night.
	Booked bool `json:"booked"`
	// Unavailable is true when the owner explicitly blocked the day.
	Unavailable bool `json:"unavailable"`
	// Override is the raw owner flag, nil when none was set.
	Override *bool  `json:"override,omitempty"`
	Note     string `json:"note,omitempty"`
	Noted    bool   `json:"noted"`

	Disabled bool `json:"disabled"`
}

// Calendar merges busy intervals, booked stays, owner overrides and day
// notes into per-day answers. All methods are safe for concurrent use;
// concurrent writes to the same day resolve last-write-wins.
type Calendar struct {
	mu  sync.RWMutex
	loc *time.Location

	// intervals is the imported feed plus manual blocks. A feed import
	// replaces it wholesale. spans[i] is intervals[i] projected onto loc.
	intervals []BusyInterval
	spans     []daySpan
	// sources holds intervals imported per external calendar sync entry.
	sources     map[string][]BusyInterval
	sourceSpans map[string][]daySpan
	stays       []Stay

	overrides map[DayKey]bool
	notes     map[DayKey]string
}

// NewCalendar returns an empty calendar whose days are defined in loc.
func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{
		loc:         loc,
		sources:     make(map[string][]BusyInterval),
		sourceSpans: make(map[string][]daySpan),
		overrides:   make(map[DayKey]bool),
		notes:       make(map[DayKey]string),
	}
}

// daySpan is the inclusive day range a busy interval covers.
type daySpan struct {
	first, last DayKey
}

func (s daySpan) contains(day DayKey) bool {
	return s.first <= day && day <= s.last
}

func spansOf(ivs []BusyInterval, loc *time.Location) []daySpan {
	out := make([]daySpan, len(ivs))
	for i, iv := range ivs {
		out[i].first, out[i].last = iv.Days(loc)
	}
	return out
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Today returns the current calendar day.
func (c *Calendar) Today() DayKey {
	return KeyOf(time.Now(), c.loc)
}

// ReplaceIntervals swaps the whole interval set, as a feed import does.
func (c *Calendar) ReplaceIntervals(ivs []BusyInterval) {
	cp := append([]BusyInterval(nil), ivs...)
	spans := spansOf(cp, c.loc)

	c.mu.Lock()
	c.intervals = cp
	c.spans = spans
	c.mu.Unlock()
}

// Intervals returns a copy of the interval set in insertion order.
func (c *Calendar) Intervals() []BusyInterval {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]BusyInterval(nil), c.intervals...)
}

// ReplaceSource swaps the intervals imported from one external calendar.
func (c *Calendar) ReplaceSource(id string, ivs []BusyInterval) {
	cp := append([]BusyInterval(nil), ivs...)
	spans := spansOf(cp, c.loc)

	c.mu.Lock()
	c.sources[id] = cp
	c.sourceSpans[id] = spans
	c.mu.Unlock()
}

// RemoveSource forgets an external calendar's intervals.
func (c *Calendar) RemoveSource(id string) {
	c.mu.Lock()
	delete(c.sources, id)
	delete(c.sourceSpans, id)
	c.mu.Unlock()
}

// SetStays replaces the booked stays projected onto the calendar.
func (c *Calendar) SetStays(stays []Stay) {
	cp := append([]Stay(nil), stays...)

	c.mu.Lock()
	c.stays = cp
	c.mu.Unlock()
}

// ApplyAvailability sets override[day] = available for every day of a
// complete selection, overwriting prior values. It returns the number of
// days written; incomplete selections write nothing.
func (c *Calendar) ApplyAvailability(r SelectedRange, available bool) int {
	days := r.Days()
	if len(days) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range days {
		c.overrides[d] = available
	}
	return len(days)
}

// BlockRange appends the selection as a new busy interval. Existing
// intervals are never merged, so repeated calls add repeated entries.
func (c *Calendar) BlockRange(r SelectedRange) bool {
	if !r.Complete() {
		return false
	}
	iv := BusyInterval{Start: r.From.Time(c.loc), End: r.To.Time(c.loc)}

	c.mu.Lock()
	c.intervals = append(c.intervals, iv)
	c.spans = append(c.spans, spansOf([]BusyInterval{iv}, c.loc)...)
	c.mu.Unlock()
	return true
}

// SaveNote stores the trimmed text on every day of the selection. Blank
// text or an incomplete selection is a no-op.
func (c *Calendar) SaveNote(r SelectedRange, text string) int {
	text = strings.TrimSpace(text)
	days := r.Days()
	if text == "" || len(days) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range days {
		c.notes[d] = text
	}
	return len(days)
}

// SelectionAvailable reports whether every day of the selection reads
// available, treating days without an override as available. An
// incomplete selection reads available.
func (c *Calendar) SelectionAvailable(r SelectedRange) bool {
	days := r.Days()

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range days {
		if v, ok := c.overrides[d]; ok && !v {
			return false
		}
	}
	return true
}

// Override returns the owner flag for day and whether one is set.
func (c *Calendar) Override(day DayKey) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.overrides[day]
	return v, ok
}

// Note returns the note for day and whether one is set.
func (c *Calendar) Note(day DayKey) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.notes[day]
	return n, ok
}

// Day answers every per-day question for a single day.
func (c *Calendar) Day(day DayKey) DayState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dayLocked(day)
}

// Window returns the state of each day in [from, to].
func (c *Calendar) Window(from, to DayKey) []DayState {
	days := EachDay(from, to)

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]DayState, 0, len(days))
	for _, d := range days {
		out = append(out, c.dayLocked(d))
	}
	return out
}

// IsDisabled reports whether day cannot be picked for a new stay.
func (c *Calendar) IsDisabled(day DayKey) bool {
	return c.Day(day).Disabled
}

// FirstDisabled returns the first disabled day in [from, to], if any.
// It stops at the first hit without materializing the range.
func (c *Calendar) FirstDisabled(from, to DayKey) (DayKey, bool) {
	if _, err := ParseDayKey(string(from)); err != nil {
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for d := from; d <= to; {
		if c.dayLocked(d).Disabled {
			return d, true
		}
		next := d.AddDays(1)
		if next <= d {
			break
		}
		d = next
	}
	return "", false
}

// RangeDisabled reports whether any day of a complete selection is
// disabled. Incomplete selections report false.
func (c *Calendar) RangeDisabled(r SelectedRange) bool {
	if !r.Complete() {
		return false
	}
	_, found := c.FirstDisabled(r.From, r.To)
	return found
}

func (c *Calendar) dayLocked(day DayKey) DayState {
	st := DayState{Day: day}

	for _, sp := range c.spans {
		if sp.contains(day) {
			st.Occupied = true
			break
		}
	}
	if !st.Occupied {
	sources:
		for _, spans := range c.sourceSpans {
			for _, sp := range spans {
				if sp.contains(day) {
					st.Occupied = true
					break sources
				}
			}
		}
	}
	for _, s := range c.stays {
		if s.Occupies(day) {
			st.Booked = true
			st.Occupied = true
			break
		}
	}

	if v, ok := c.overrides[day]; ok {
		st.Override = &v
		st.Unavailable = !v
	}
	if n, ok := c.notes[day]; ok {
		st.Note = n
		st.Noted = true
	}

	st.Disabled = st.Occupied || st.Unavailable
	return st
}

// OccupiedIntervals is the published view: feed and manual intervals in
// insertion order, then synced sources (by id), then booked stays.
func (c *Calendar) OccupiedIntervals() []BusyInterval {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := append([]BusyInterval(nil), c.intervals...)

	ids := make([]string, 0, len(c.sources))
	for id := range c.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, c.sources[id]...)
	}

	for _, s := range c.stays {
		if iv, ok := s.Interval(c.loc); ok {
			out = append(out, iv)
		}
	}
	return out
}

// Compact drops override and note entries for days strictly before
// before and returns how many entries were removed.
func (c *Calendar) Compact(before DayKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for d := range c.overrides {
		if d < before {
			delete(c.overrides, d)
			removed++
		}
	}
	for d := range c.notes {
		if d < before {
			delete(c.notes, d)
			removed++
		}
	}
	return removed
}

// Counts reports the sizes of the per-day maps and interval set.
func (c *Calendar) Counts() (intervals, overrides, notes int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.intervals), len(c.overrides), len(c.notes)
}
