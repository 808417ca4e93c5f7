package model

import (
    "fmt"
    "strings"
    "time"
)

// Date is a calendar day with no time-of-day component, marshaled as
// YYYY-MM-DD. All schedule math runs in the service's single configured
// calendar timezone; internally days are pinned to midnight UTC so day
// arithmetic is exact.
type Date struct {
    t time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
    return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar day.
func DateOf(t time.Time) Date {
    y, m, d := t.Date()
    return NewDate(y, m, d)
}

func ParseDate(s string) (Date, error) {
    t, err := time.Parse(dateLayout, strings.TrimSpace(s))
    if err != nil {
        return Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
    }
    return Date{t}, nil
}

func (d Date) IsZero() bool   { return d.t.IsZero() }
func (d Date) String() string { return d.t.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
    if d.IsZero() { return []byte(`""`), nil }
    return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
    s := strings.Trim(string(b), `"`)
    if s == "" || s == "null" {
        *d = Date{}
        return nil
    }
    p, err := ParseDate(s)
    if err != nil { return err }
    *d = p
    return nil
}

func (d Date) AddDays(n int) Date { return Date{d.t.AddDate(0, 0, n)} }

// DaysSince returns the signed whole-day difference d - other.
func (d Date) DaysSince(other Date) int {
    return int(d.t.Sub(other.t) / (24 * time.Hour))
}

// Weekday returns the day of week with Sun=0 .. Sat=6, matching the
// RouteDay encoding.
func (d Date) Weekday() int { return int(d.t.Weekday()) }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

func (d Date) Year() int        { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int         { return d.t.Day() }

// MonthStart returns the first day of d's month.
func (d Date) MonthStart() Date { return NewDate(d.t.Year(), d.t.Month(), 1) }

// DaysInMonth returns the number of calendar days in d's month.
func (d Date) DaysInMonth() int {
    first := d.MonthStart()
    return first.t.AddDate(0, 1, -1).Day()
}

var weekdayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// WeekdayName maps Sun=0..Sat=6 to its short name; out-of-range values
// return "?".
func WeekdayName(n int) string {
    if n < 0 || n > 6 { return "?" }
    return weekdayNames[n]
}

// ParseWeekday accepts short ("Mon") or long ("Monday") names, case
// insensitively, or a bare digit 0-6.
func ParseWeekday(s string) (int, error) {
    v := strings.TrimSpace(s)
    if len(v) == 1 && v[0] >= '0' && v[0] <= '6' {
        return int(v[0] - '0'), nil
    }
    for i, n := range weekdayNames {
        if strings.EqualFold(v, n) || strings.EqualFold(v, longWeekdayNames[i]) {
            return i, nil
        }
    }
    return 0, fmt.Errorf("invalid weekday %q", s)
}

var longWeekdayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
