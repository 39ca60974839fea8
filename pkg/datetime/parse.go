// Package datetime provides date and time utility functions.
package datetime

import (
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/tamerun-invest/pkg/constants"
)

const (
	// DateLayout is the wire format for down-payment dates.
	DateLayout = constants.DateLayout
)

// acceptedLayouts lists the down-payment date formats accepted from clients,
// most specific first.
var acceptedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	DateLayout,
	constants.FormDateLayout,
}

var shortMonthNames = [...]string{
	"янв.", "фев.", "мар.", "апр.", "май", "июн.",
	"июл.", "авг.", "сен.", "окт.", "ноя.", "дек.",
}

// Moscow is the fixed UTC+3 zone used for document timestamps.
var Moscow = time.FixedZone("MSK", 3*60*60)

// MustParseTime parses a date string using the given layout and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseTime(layout, dateStr string) time.Time {
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseDate parses a down-payment date in any of the accepted formats and
// truncates it to the calendar day.
func ParseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("date cannot be empty")
	}
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format %q", value)
}

// Day strips the clock from t, keeping its calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddMonths offsets t by the given number of months. The day is clamped to
// the last day of the target month, so 31 January plus one month is the end
// of February rather than early March.
func AddMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, months, 0)
	lastDay := target.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return target.AddDate(0, 0, day-1)
}

// ShortMonthLabel formats t as an abbreviated Russian month and year,
// e.g. "авг. 2025".
func ShortMonthLabel(t time.Time) string {
	return fmt.Sprintf("%s %d", shortMonthNames[t.Month()-1], t.Year())
}
