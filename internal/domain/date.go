package domain

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day in YYYY-MM-DD form. It is stored as text so range
// queries compare lexically on every dialect.
type Date string

func NewDate(year int, month time.Month, day int) Date {
	return NormalizeDate(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// NormalizeDate truncates t to its calendar day in t's own location.
func NormalizeDate(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return NormalizeDate(t), nil
}

func (d Date) String() string {
	return string(d)
}

// Time returns midnight UTC of d, or the zero time when d is malformed.
func (d Date) Time() time.Time {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (d Date) Valid() bool {
	_, err := time.Parse(dateLayout, string(d))
	return err == nil
}

func (d Date) IsZero() bool {
	return d == ""
}

func (d Date) Before(other Date) bool {
	return d < other
}

func (d Date) After(other Date) bool {
	return d > other
}

func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d Date) AddDays(n int) Date {
	return NormalizeDate(d.Time().AddDate(0, 0, n))
}
