package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"staycal/internal/availability"
)

// ExportOptions controls the published occupancy feed.
type ExportOptions struct {
	// Location defines which calendar days an interval covers.
	Location *time.Location
	// ProductID is the PRODID of the calendar.
	ProductID string
	// Summary is the title of every event; third-party importers only
	// care about the dates.
	Summary string
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// Export renders intervals as a PUBLISH calendar with one all-day event
// per interval. DTEND is the day after the inclusive end, so feeding the
// result back through ParseFeed yields the same days.
func Export(ivs []availability.BusyInterval, opts ExportOptions) string {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ProductID == "" {
		opts.ProductID = "-//staycal//occupancy//EN"
	}
	if opts.Summary == "" {
		opts.Summary = "Reserved"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProductID)

	for i, iv := range ivs {
		first, last := iv.Days(opts.Location)

		ev := cal.AddEvent(fmt.Sprintf("%s-%s-%d@staycal", first, last, i))
		ev.SetDtStampTime(opts.Now.UTC())
		ev.SetAllDayStartAt(first.Time(opts.Location))
		ev.SetAllDayEndAt(last.AddDays(1).Time(opts.Location))
		ev.SetSummary(opts.Summary)
	}

	return cal.Serialize()
}
