package entity

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const SlotDateLayout = "2006-01-02"

var ErrInvalidSlot = errors.New("invalid slot")

var slotLabelPattern = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*([AaPp][Mm])\s*$`)

// Slot is one bookable (date, time) window.
type Slot struct {
	Date string
	Time string
}

func (s Slot) String() string {
	return s.Date + " " + s.Time
}

// ParseSlotClock converts a 12-hour label such as "2:00 PM" into a 24-hour
// hour and minute.
func ParseSlotClock(label string) (int, int, error) {
	m := slotLabelPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: time %q is not h:mm AM/PM", ErrInvalidSlot, label)
	}

	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour < 1 || hour > 12 {
		return 0, 0, fmt.Errorf("%w: hour %d out of range", ErrInvalidSlot, hour)
	}
	if minute > 59 {
		return 0, 0, fmt.Errorf("%w: minute %d out of range", ErrInvalidSlot, minute)
	}

	switch strings.ToUpper(m[3]) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour != 12 {
			hour += 12
		}
	}

	return hour, minute, nil
}

// FormatSlotLabel renders a 24-hour clock as the canonical slot label.
func FormatSlotLabel(hour, minute int) string {
	marker := "AM"
	if hour >= 12 {
		marker = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, minute, marker)
}

// NormalizeSlotLabel rewrites label in canonical form so "02:00 pm" and
// "2:00 PM" name the same slot.
func NormalizeSlotLabel(label string) (string, error) {
	hour, minute, err := ParseSlotClock(label)
	if err != nil {
		return "", err
	}
	return FormatSlotLabel(hour, minute), nil
}

// NormalizeSlotDate strips a time suffix from ISO timestamps ("2025-07-15T00:00:00Z").
func NormalizeSlotDate(date string) string {
	date = strings.TrimSpace(date)
	if i := strings.Index(date, "T"); i > 0 {
		return date[:i]
	}
	return date
}

// ParseSlotDate validates a YYYY-MM-DD calendar day.
func ParseSlotDate(date string) (time.Time, error) {
	day, err := time.Parse(SlotDateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidSlot, date)
	}
	return day, nil
}

// SlotStart returns the absolute start of the slot in the given zone.
// An empty zone means DefaultTimezone.
func SlotStart(date, label, zone string) (time.Time, error) {
	day, err := ParseSlotDate(date)
	if err != nil {
		return time.Time{}, err
	}

	hour, minute, err := ParseSlotClock(label)
	if err != nil {
		return time.Time{}, err
	}

	if zone == "" {
		zone = DefaultTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSlot, zone)
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}
