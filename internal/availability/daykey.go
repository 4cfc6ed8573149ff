package availability

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// DayKey is a calendar day formatted as YYYY-MM-DD. It is the join key of
// every per-day map; two keys are equal iff they name the same day in the
// calendar's location. The zero value means "unset".
type DayKey string

// KeyOf returns the calendar day of t as seen in loc. A nil loc means
// time.Local.
func KeyOf(t time.Time, loc *time.Location) DayKey {
	if loc == nil {
		loc = time.Local
	}
	return DayKey(t.In(loc).Format(dayLayout))
}

// ParseDayKey validates s and returns it as a DayKey.
func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid day %q (expected YYYY-MM-DD)", s)
	}
	return DayKey(t.Format(dayLayout)), nil
}

// IsZero reports whether k is unset.
func (k DayKey) IsZero() bool { return k == "" }

func (k DayKey) String() string { return string(k) }

// Time returns midnight of k in loc.
func (k DayKey) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dayLayout, string(k), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays shifts k by n calendar days. Arithmetic runs in UTC so DST
// transitions never skip or repeat a day.
func (k DayKey) AddDays(n int) DayKey {
	t, err := time.Parse(dayLayout, string(k))
	if err != nil {
		return k
	}
	return DayKey(t.AddDate(0, 0, n).Format(dayLayout))
}

// DaysUntil returns the number of calendar days from k to other
// (negative when other is earlier).
func (k DayKey) DaysUntil(other DayKey) int {
	a, errA := time.Parse(dayLayout, string(k))
	b, errB := time.Parse(dayLayout, string(other))
	if errA != nil || errB != nil {
		return 0
	}
	return int(b.Sub(a).Hours() / 24)
}

// EachDay expands the inclusive range [from, to] day by day. It returns
// nil when either end is unset or malformed, or from is after to.
func EachDay(from, to DayKey) []DayKey {
	if from.IsZero() || to.IsZero() || from > to {
		return nil
	}
	if _, err := ParseDayKey(string(from)); err != nil {
		return nil
	}
	if _, err := ParseDayKey(string(to)); err != nil {
		return nil
	}
	days := make([]DayKey, 0, from.DaysUntil(to)+1)
	for d := from; d <= to; {
		days = append(days, d)
		next := d.AddDays(1)
		if next <= d {
			break
		}
		d = next
	}
	return days
}
