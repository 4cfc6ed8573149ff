package availability

import "time"

// BusyInterval is an occupied stretch, inclusive on both ends at day
// granularity.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewBusyInterval builds an interval and clamps End to Start when the
// caller passes an end that precedes the start.
func NewBusyInterval(start, end time.Time) BusyInterval {
	if end.Before(start) {
		end = start
	}
	return BusyInterval{Start: start, End: end}
}

// FromExclusiveEnd converts a feed event, whose end is exclusive, into an
// inclusive interval by moving the end back one day.
func FromExclusiveEnd(start, end time.Time) BusyInterval {
	return NewBusyInterval(start, end.AddDate(0, 0, -1))
}

// Days returns the first and last calendar day covered in loc.
func (iv BusyInterval) Days(loc *time.Location) (DayKey, DayKey) {
	return KeyOf(iv.Start, loc), KeyOf(iv.End, loc)
}

// Contains reports whether day falls within [Start, End] by calendar day.
func (iv BusyInterval) Contains(day DayKey, loc *time.Location) bool {
	first, last := iv.Days(loc)
	return first <= day && day <= last
}

// Stay projects a booking onto the nights it occupies: [CheckIn, CheckOut).
type Stay struct {
	CheckIn  DayKey `json:"check_in"`
	CheckOut DayKey `json:"check_out"`
}

// Occupies reports whether day is one of the stay's nights.
func (s Stay) Occupies(day DayKey) bool {
	return s.CheckIn <= day && day < s.CheckOut
}

// Interval returns the stay as an inclusive interval in loc. ok is false
// for stays with no nights.
func (s Stay) Interval(loc *time.Location) (BusyInterval, bool) {
	if s.CheckIn.IsZero() || s.CheckOut <= s.CheckIn {
		return BusyInterval{}, false
	}
	return BusyInterval{
		Start: s.CheckIn.Time(loc),
		End:   s.CheckOut.AddDays(-1).Time(loc),
	}, true
}

// SelectedRange is the operator's working selection. Either end may be
// unset while the selection is being made.
type SelectedRange struct {
	From DayKey `json:"from"`
	To   DayKey `json:"to"`
}

// Complete reports whether both ends are set and ordered.
func (r SelectedRange) Complete() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.From <= r.To
}

// Days expands a complete range; incomplete ranges yield nil.
func (r SelectedRange) Days() []DayKey {
	if !r.Complete() {
		return nil
	}
	return EachDay(r.From, r.To)
}
