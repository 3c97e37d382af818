package availability

import "github.com/agendave/agendave/services/booking-service/internal/model"

// Interval is a half-open [Start, End) range of the day.
type Interval struct {
	Start model.Clock
	End   model.Clock
}

func (i Interval) Overlaps(start, end model.Clock) bool {
	return start < i.End && end > i.Start
}

// Expand widens the interval by the given minutes on each side.
func (i Interval) Expand(before, after int) Interval {
	return Interval{Start: i.Start.Add(-before), End: i.End.Add(after)}
}

// Slots returns the start times within window where a booking of length duration fits and
// does not overlap any busy interval. Candidates are stepped from window start regardless of
// duration; the walk stops at the first candidate that would overrun the window. Candidates
// before notBefore are skipped.
func Slots(window Interval, duration, step int, busy []Interval, notBefore model.Clock) []model.Clock {
	if duration <= 0 || step <= 0 || window.End <= window.Start {
		return nil
	}

	var slots []model.Clock
	for t := window.Start; t < window.End; t = t.Add(step) {
		if duration > int(window.End-t) {
			break
		}
		if t < notBefore {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// Aligned reports whether t is a candidate start Slots could produce for window.
func Aligned(window Interval, duration, step int, t model.Clock) bool {
	if step <= 0 || t < window.Start {
		return false
	}
	return int(t-window.Start)%step == 0 && duration <= int(window.End-t)
}

func overlapsAny(start, end model.Clock, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
