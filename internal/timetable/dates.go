package timetable

import (
	"log"
	"strconv"
	"strings"
	"time"
)

// NormalizeDate rewrites a "dd.mm.yy" cell into the canonical UTC midnight
// timestamp (RFC 3339). Anything it cannot read is returned unchanged so the
// store-side validation can reject it later; it never fails.
func NormalizeDate(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return value
	}
	parts := strings.Split(v, ".")
	if len(parts) < 3 {
		return value
	}

	day, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return value
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return value
	}
	year, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return value
	}

	if year < 0 || year > 99 || month < 1 || month > 12 || day < 1 || day > 31 {
		return value
	}
	year += 2000

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		log.Printf("Invalid calendar date %q, keeping original text", value)
		return value
	}
	return t.Format(time.RFC3339)
}

// parseCanonicalDate accepts only the output of NormalizeDate.
func parseCanonicalDate(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	if t.Format(time.RFC3339) != s || !t.Equal(dateOnlyUTC(t)) {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func dateOnlyUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	u := t.UTC()
	y, m, d := u.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a stored date the way the sheet shows it (dd.mm.yyyy).
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "Invalid Date"
	}
	return t.UTC().Format("02.01.2006")
}
