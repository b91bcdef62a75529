package booking

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar date (no time-of-day semantics)
// =============================================================================

// Date is a calendar date normalized to UTC midnight. Bookings have no
// time-of-day semantics: a stay from the 10th to the 12th occupies the nights
// of the 10th and the 11th.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary time to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func Today() Date { return DateOf(time.Now().UTC()) }

// Comparison
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }
func (d Date) IsZero() bool           { return d.t.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) Time() time.Time   { return d.t }

func (d Date) String() string { return d.t.Format("2006-01-02") }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns whole calendar days from one date to another.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// =============================================================================
// DATE RANGE - Half-open interval [Start, End)
// =============================================================================

// DateRange is a half-open interval: Start is the check-in date, End is the
// check-out date and is NOT occupied. Two ranges that only touch at a
// boundary (A.End == B.Start) do not overlap.
type DateRange struct {
	Start Date
	End   Date
}

// Nights returns the number of nights covered by the range.
func (r DateRange) Nights() int { return DaysBetween(r.Start, r.End) }

// Overlaps reports whether two half-open ranges intersect.
func (r DateRange) Overlaps(other DateRange) bool {
	return other.Start.Before(r.End) && r.Start.Before(other.End)
}

// Contains reports whether the date falls inside [Start, End).
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && d.Before(r.End)
}

func (r DateRange) String() string {
	return r.Start.String() + " .. " + r.End.String()
}
