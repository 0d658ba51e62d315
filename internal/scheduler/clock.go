package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	MinOffset = -12
	MaxOffset = 14

	minutesPerDay = 24 * 60
)

var (
	ErrInvalidClock  = errors.New("time must be HH:MM (24-hour)")
	ErrInvalidOffset = fmt.Errorf("offset must be a whole hour between %d and %+d", MinOffset, MaxOffset)

	clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)
)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock accepts only zero-padded 24-hour "HH:MM".
func ParseClock(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Clock{}, ErrInvalidClock
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	return Clock{Hour: h, Minute: min}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

func clockFromMinutes(m int) Clock {
	m %= minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	return Clock{Hour: m / 60, Minute: m % 60}
}

// ToUTC converts a local time at the given whole-hour offset to UTC, mod 24h.
func (c Clock) ToUTC(offset int) Clock {
	return clockFromMinutes(c.minutes() - offset*60)
}

// ToLocal is the inverse of ToUTC.
func (c Clock) ToLocal(offset int) Clock {
	return clockFromMinutes(c.minutes() + offset*60)
}

func ValidateOffset(offset int) error {
	if offset < MinOffset || offset > MaxOffset {
		return ErrInvalidOffset
	}
	return nil
}

// ParseOffset reads offsets such as "+2", "-5", "0", "UTC+3" or "GMT-4".
func ParseOffset(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "UTC")
	s = strings.TrimPrefix(s, "GMT")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidOffset
	}
	offset, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrInvalidOffset
	}
	if err := ValidateOffset(offset); err != nil {
		return 0, err
	}
	return offset, nil
}
