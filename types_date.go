package uabean

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const readDateFormat = "2006-1-2" // Permissive read date format (allows single-digit month/day).

// DateFormat is the format used to represent dates as strings in ISO-8601 format.
const DateFormat = "2006-01-02"

// Date represents a date with day-level granularity.
type Date struct {
	y int        // year
	m time.Month // month
	d int        // day
}

// NewDate returns a normalized Date for the given year, month, and day.
func NewDate(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.time().Date()
	return d
}

// Year returns current year.
func (d Date) Year() int { return d.y }

// Month returns the month of the date.
func (d Date) Month() time.Month { return d.m }

// Day returns current day of the month.
func (d Date) Day() int { return d.d }

// String format the date in its standard format.
func (d Date) String() string { return d.time().Format(DateFormat) }

// IsZero returns true if the date is the zero value.
func (d Date) IsZero() bool { return d.y == 0 && d.m == 0 && d.d == 0 }

// time returns a time.Time that is a canonical representation of that day (at midnight UTC).
func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Before reports whether the day d is before x.
func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }

// After reports whether the day d is after x.
func (d Date) After(x Date) bool { return d.time().After(x.time()) }

// Add returns a new Date with the given number of days added.
func (d Date) Add(days int) Date { return NewDate(d.y, d.m, d.d+days) }

// Today returns the current date.
func Today() Date { return NewDate(time.Now().Date()) }

// ParseDate parses a Date from a string. It is lenient and accepts formats like "2025-7-1".
func ParseDate(str string) (Date, error) {
	on, err := time.Parse(readDateFormat, str)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q want format %q: %w", str, readDateFormat, err)
	}
	return NewDate(on.Date()), nil
}

// MustParseDate is like ParseDate but panics on error.
func MustParseDate(str string) Date {
	d, err := ParseDate(str)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// ParseDayFirst parses dates as exported by Ukrainian banks: day first,
// dot separated, with an optional time-of-day part ("02.01.2006 15:04:05").
// The time part, when present, is returned as a Clock.
func ParseDayFirst(str string) (Date, Clock, error) {
	str = strings.TrimSpace(str)
	datePart, timePart, hasTime := strings.Cut(str, " ")
	for _, layout := range []string{"02.01.2006", "2.1.2006", "02.01.06"} {
		if on, err := time.Parse(layout, datePart); err == nil {
			var c Clock
			if hasTime {
				var err error
				if c, err = ParseClock(strings.TrimSpace(timePart)); err != nil {
					return Date{}, Clock{}, err
				}
			}
			return NewDate(on.Date()), c, nil
		}
	}
	return Date{}, Clock{}, fmt.Errorf("invalid day-first date %q", str)
}

// UnmarshalJSON implements the json specific way to unmarshall a date from a json string.
func (d *Date) UnmarshalJSON(bytes []byte) error {
	var str string
	if err := json.Unmarshal(bytes, &str); err != nil {
		return err
	}
	parsed, err := ParseDate(str)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	str := d.String()
	return json.Marshal(&str)
}

var _ json.Marshaler = (*Date)(nil)
var _ json.Unmarshaler = (*Date)(nil)

// Clock is a time of day with second granularity. The zero Clock is midnight,
// which is also what statements without a time column get.
type Clock struct {
	secs int // seconds since midnight
}

// NewClock returns a Clock for the given hour, minute and second.
func NewClock(hour, min, sec int) Clock { return Clock{secs: hour*3600 + min*60 + sec} }

// ParseClock parses a "15:04:05" or "15:04" time of day.
func ParseClock(str string) (Clock, error) {
	parts := strings.Split(str, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return Clock{}, fmt.Errorf("invalid time of day %q", str)
	}
	secs := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Clock{}, fmt.Errorf("invalid time of day %q", str)
		}
		secs = secs*60 + n
	}
	if len(parts) == 2 {
		secs *= 60
	}
	return Clock{secs: secs}, nil
}

// String formats the clock as "15:04:05".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.secs/3600%24, c.secs/60%60, c.secs%60)
}

// RoundHour returns the clock rounded to the nearest hour. Times past 23:30
// wrap around to midnight, matching how hourly bucketing treats end of day.
func (c Clock) RoundHour() Clock {
	return Clock{secs: (c.secs + 1800) / 3600 * 3600 % 86400}
}
