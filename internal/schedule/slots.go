package schedule

import (
	"time"
)

// Slot is a candidate bookable interval derived on demand. Never persisted.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// Interval is a half-open busy interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// SlotsForDay tiles the doctor's working shifts for the given date into
// contiguous SlotDuration blocks, in chronological order. A slot is
// available unless it overlaps a busy interval or its start is not strictly
// after now. Pure function: same inputs always yield the same sequence.
func SlotsForDay(sched *Schedule, day time.Time, busy []Interval, now time.Time) []Slot {
	if sched == nil || sched.SlotDuration <= 0 {
		return nil
	}

	var slots []Slot
	for _, shift := range sched.Hours.ForWeekday(day.Weekday()) {
		start, err := at(day, shift.Start)
		if err != nil {
			continue
		}
		end, err := at(day, shift.End)
		if err != nil || !end.After(start) {
			continue
		}
		for t := start; !t.Add(sched.SlotDuration).After(end); t = t.Add(sched.SlotDuration) {
			slotEnd := t.Add(sched.SlotDuration)
			slots = append(slots, Slot{
				Start:     t,
				End:       slotEnd,
				Available: t.After(now) && !overlapsAny(t, slotEnd, busy),
			})
		}
	}
	return slots
}

// AlignedSlot reports whether [start, end) is exactly one of the slots the
// schedule produces for start's date, regardless of availability.
func AlignedSlot(sched *Schedule, start, end time.Time) bool {
	if sched == nil || sched.SlotDuration <= 0 {
		return false
	}
	for _, shift := range sched.Hours.ForWeekday(start.Weekday()) {
		shiftStart, err := at(start, shift.Start)
		if err != nil {
			continue
		}
		shiftEnd, err := at(start, shift.End)
		if err != nil {
			continue
		}
		if start.Before(shiftStart) || end.After(shiftEnd) {
			continue
		}
		if start.Sub(shiftStart)%sched.SlotDuration != 0 {
			continue
		}
		if end.Sub(start) == sched.SlotDuration {
			return true
		}
	}
	return false
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff
		// start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
