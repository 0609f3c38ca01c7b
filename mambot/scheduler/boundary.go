package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dayKeyLayout = "20060102"

// Boundary defines when one rollover day ends and the next begins: a time of
// day in an IANA zone. A day key is the YYYYMMDD date the instant belongs to,
// where instants before today's rollover time still belong to yesterday.
type Boundary struct {
	loc    *time.Location
	hour   int
	minute int
}

// NewBoundary parses an IANA zone name and an "HH:MM" rollover time.
// Out-of-range fields clamp rather than fail, empty inputs mean midnight UTC.
func NewBoundary(tzName, rolloverTime string) (*Boundary, error) {
	if tzName == "" {
		tzName = "UTC"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid rollover timezone %q: %w", tzName, err)
	}

	hour, minute := 0, 0
	if rolloverTime != "" {
		left, right, _ := strings.Cut(rolloverTime, ":")
		hour = clampInt(left, 0, 23)
		minute = clampInt(right, 0, 59)
	}
	return &Boundary{loc: loc, hour: hour, minute: minute}, nil
}

func clampInt(raw string, lo, hi int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return lo
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// DayKey returns the YYYYMMDD key of the rollover day containing t.
func (b *Boundary) DayKey(t time.Time) string {
	local := t.In(b.loc)
	rollover := time.Date(local.Year(), local.Month(), local.Day(), b.hour, b.minute, 0, 0, b.loc)
	if local.Before(rollover) {
		return local.AddDate(0, 0, -1).Format(dayKeyLayout)
	}
	return local.Format(dayKeyLayout)
}

// NextDayKey returns the key one period after key.
func (b *Boundary) NextDayKey(key string) (string, error) {
	day, err := time.ParseInLocation(dayKeyLayout, key, b.loc)
	if err != nil {
		return "", fmt.Errorf("invalid day key %q: %w", key, err)
	}
	return day.AddDate(0, 0, 1).Format(dayKeyLayout), nil
}

// NextBoundary returns the next rollover instant strictly after t.
func (b *Boundary) NextBoundary(t time.Time) time.Time {
	local := t.In(b.loc)
	rollover := time.Date(local.Year(), local.Month(), local.Day(), b.hour, b.minute, 0, 0, b.loc)
	if !rollover.After(local) {
		rollover = rollover.AddDate(0, 0, 1)
	}
	return rollover
}

// Label is the human-readable boundary description for logs.
func (b *Boundary) Label() string {
	return fmt.Sprintf("%02d:%02d %s", b.hour, b.minute, b.loc.String())
}
