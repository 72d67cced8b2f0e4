// Package schedule models doctor working hours and derives bookable slots
// from them. Schedules are owned by the profile service; the engine reads
// them read-only.
package schedule

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Shift is a single working interval within a day, "HH:MM" 24-hour times.
type Shift struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklyHours maps day names to their working shifts. A day with no shifts
// means the doctor does not work that day.
type WeeklyHours struct {
	Monday    []Shift `json:"monday,omitempty"`
	Tuesday   []Shift `json:"tuesday,omitempty"`
	Wednesday []Shift `json:"wednesday,omitempty"`
	Thursday  []Shift `json:"thursday,omitempty"`
	Friday    []Shift `json:"friday,omitempty"`
	Saturday  []Shift `json:"saturday,omitempty"`
	Sunday    []Shift `json:"sunday,omitempty"`
}

// ForWeekday returns the shifts configured for the given weekday.
func (w WeeklyHours) ForWeekday(day time.Weekday) []Shift {
	switch day {
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	case time.Sunday:
		return w.Sunday
	}
	return nil
}

// Schedule is a doctor's slot configuration.
type Schedule struct {
	DoctorID     uuid.UUID
	SlotDuration time.Duration
	Hours        WeeklyHours
}

var timeOfDayRe = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseTimeOfDay parses "HH:MM" into hour and minute.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := timeOfDayRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("schedule: invalid time of day %q", s)
	}
	// Regexp guarantees two-digit numeric groups.
	hour = int(m[1][0]-'0')*10 + int(m[1][1]-'0')
	minute = int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	return hour, minute, nil
}

// at anchors an "HH:MM" time of day onto the given date in its location.
func at(day time.Time, hhmm string) (time.Time, error) {
	h, m, err := ParseTimeOfDay(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location()), nil
}
