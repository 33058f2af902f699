package domain

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar day (leave is booked in whole or half days)
// =============================================================================

// TimePoint is a calendar date normalized to UTC midnight.
type TimePoint struct {
	Time time.Time
}

const DateLayout = "2006-01-02"

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint   { return DateOf(tp.Time.AddDate(0, 0, n)) }
func (tp TimePoint) AddMonths(n int) TimePoint { return DateOf(tp.Time.AddDate(0, n, 0)) }
func (tp TimePoint) AddYears(n int) TimePoint  { return DateOf(tp.Time.AddDate(n, 0, 0)) }

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool      { return tp.Time.IsZero() }
func (tp TimePoint) String() string    { return tp.Time.Format(DateLayout) }

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	if tp.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + tp.String() + `"`), nil
}

func (tp *TimePoint) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*tp = TimePoint{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("date must be a string in %s format", DateLayout)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// DaysBetween returns whole days from 'from' to 'to' (negative if to is earlier).
func DaysBetween(from, to TimePoint) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

// MonthsBetween counts completed months from 'from' to 'to'.
func MonthsBetween(from, to TimePoint) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is the closed interval [Start, End].
type Period struct {
	Start TimePoint
	End   TimePoint
}

func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether two closed intervals share at least one day.
func (p Period) Overlaps(o Period) bool {
	return p.Start.BeforeOrEqual(o.End) && o.Start.BeforeOrEqual(p.End)
}

// CalendarDays counts days in the period, both ends included.
func (p Period) CalendarDays() int {
	return DaysBetween(p.Start, p.End) + 1
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// FINANCIAL YEAR
// =============================================================================

// FiscalCalendar turns dates into financial-year buckets.
// StartMonth is the first month of the financial year (April for FY2024-2025 = Apr 2024..Mar 2025).
type FiscalCalendar struct {
	StartMonth time.Month
}

func (fc FiscalCalendar) startMonth() time.Month {
	if fc.StartMonth < time.January || fc.StartMonth > time.December {
		return time.April
	}
	return fc.StartMonth
}

// StartYear returns the calendar year in which the financial year containing t begins.
func (fc FiscalCalendar) StartYear(t TimePoint) int {
	if t.Month() < fc.startMonth() {
		return t.Year() - 1
	}
	return t.Year()
}

// Period returns the financial year starting in startYear.
func (fc FiscalCalendar) Period(startYear int) Period {
	start := NewTimePoint(startYear, fc.startMonth(), 1)
	return Period{Start: start, End: start.AddYears(1).AddDays(-1)}
}

// Label formats the financial year starting in startYear, e.g. "FY2024-2025".
func (fc FiscalCalendar) Label(startYear int) string {
	p := fc.Period(startYear)
	return fmt.Sprintf("FY%d-%d", p.Start.Year(), p.End.Year())
}

// LabelFor returns the label of the financial year containing t.
func (fc FiscalCalendar) LabelFor(t TimePoint) string {
	return fc.Label(fc.StartYear(t))
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies "now" so that date-sensitive rules (cancel-after-start,
// tenure, yearly caps) can be tested deterministically.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

func (c Clock) Now() time.Time {
	if c == nil {
		return SystemClock()
	}
	return c()
}

func (c Clock) Today() TimePoint { return DateOf(c.Now()) }
