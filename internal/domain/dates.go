package domain

import (
	"cmp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used in reports and requests.
const DateLayout = "2006-01-02"

// DateOf returns the calendar date of t, in t's own location, as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from the date of a to the date of b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// ParseDate parses a YYYY-MM-DD string into a calendar date.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds an inclusive range; start after end yields ErrInvalidTimestamp.
func NewDateRange(start, end time.Time) (DateRange, error) {
	start, end = DateOf(start), DateOf(end)
	if start.After(end) {
		return DateRange{}, ErrInvalidTimestamp
	}
	return DateRange{Start: start, End: end}, nil
}

// Contains reports whether date falls inside the range.
func (r DateRange) Contains(date time.Time) bool {
	date = DateOf(date)
	return !date.Before(r.Start) && !date.After(r.End)
}

// Dates returns every date in the range in order.
func (r DateRange) Dates() []time.Time {
	out := []time.Time{}
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// CompareKeys orders item keys by project prefix and then by numeric suffix, so ABC-9 < ABC-10.
func CompareKeys(a, b string) int {
	pa, na, okA := splitKey(a)
	pb, nb, okB := splitKey(b)
	if !okA || !okB {
		return cmp.Compare(a, b)
	}
	if c := cmp.Compare(pa, pb); c != 0 {
		return c
	}
	return cmp.Compare(na, nb)
}

func splitKey(key string) (string, int, bool) {
	idx := strings.LastIndex(key, "-")
	if idx < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(key[idx+1:])
	if err != nil {
		return "", 0, false
	}
	return key[:idx], n, true
}
