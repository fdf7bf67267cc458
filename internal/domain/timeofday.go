package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ToMinutes parses an HH:MM or HH:MM:SS time of day into minutes past
// midnight. Seconds are validated and dropped.
func ToMinutes(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}

	hours, err := parseClockField(parts[0], 23)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	minutes, err := parseClockField(parts[1], 59)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	if len(parts) == 3 {
		if _, err := parseClockField(parts[2], 59); err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
		}
	}

	return hours*60 + minutes, nil
}

func parseClockField(s string, max int) (int, error) {
	if len(s) == 0 || len(s) > 2 {
		return 0, fmt.Errorf("bad field %q", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > max {
		return 0, fmt.Errorf("field %d out of range", n)
	}
	return n, nil
}

// FormatMinutes renders minutes past midnight as zero-padded HH:MM. Values
// past 23:59 are not wrapped, so 1470 becomes "24:30".
func FormatMinutes(total int) string {
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// AddMinutes returns t shifted by duration minutes. The result is not clamped
// at midnight; callers that need a valid time of day must run it through
// ToMinutes.
func AddMinutes(t string, duration int) (string, error) {
	m, err := ToMinutes(t)
	if err != nil {
		return "", err
	}
	return FormatMinutes(m + duration), nil
}

// NormalizeTime canonicalizes a time of day to HH:MM.
func NormalizeTime(t string) (string, error) {
	m, err := ToMinutes(t)
	if err != nil {
		return "", err
	}
	return FormatMinutes(m), nil
}

// IntervalsOverlap reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) share an instant. Touching endpoints do not overlap.
func IntervalsOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return (aStart >= bStart && aStart < bEnd) ||
		(aEnd > bStart && aEnd <= bEnd) ||
		(aStart <= bStart && aEnd >= bEnd)
}

// ParseRange parses a start/end pair and requires start < end.
func ParseRange(start, end string) (int, int, error) {
	s, err := ToMinutes(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := ToMinutes(end)
	if err != nil {
		return 0, 0, err
	}
	if s >= e {
		return 0, 0, fmt.Errorf("%w: %s-%s", ErrInvalidTimeRange, start, end)
	}
	return s, e, nil
}
