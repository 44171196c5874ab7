package appointment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SlotLength is the fixed length of a bookable slot.
const SlotLength = 30 * time.Minute

// TimeOfDay is a wall clock time without a date, in minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS" (seconds must be zero).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if t.Second() != 0 {
		return 0, fmt.Errorf("parse time of day %q: seconds not supported", s)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On places t on the calendar date of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, t.Hour(), t.Minute(), 0, 0, d.Location())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Slots are the bookable start times of every day, in order.
var Slots = buildSlots(
	[2]TimeOfDay{NewTimeOfDay(8, 0), NewTimeOfDay(13, 0)},
	[2]TimeOfDay{NewTimeOfDay(14, 0), NewTimeOfDay(18, 0)},
)

func buildSlots(ranges ...[2]TimeOfDay) []TimeOfDay {
	step := TimeOfDay(SlotLength / time.Minute)
	var out []TimeOfDay
	for _, r := range ranges {
		for t := r[0]; t < r[1]; t += step {
			out = append(out, t)
		}
	}
	return out
}

// ValidateSlot rejects instants whose time is not one of Slots.
func ValidateSlot(t time.Time) error {
	if t.Second() != 0 || t.Nanosecond() != 0 {
		return fmt.Errorf("%s: %w", t.Format("15:04:05"), ErrInvalidSlot)
	}
	tod := TimeOfDayOf(t)
	for _, s := range Slots {
		if s == tod {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", tod, ErrInvalidSlot)
}

type DayAvailability struct {
	Start     TimeOfDay `json:"start"`
	End       TimeOfDay `json:"end"`
	Available bool      `json:"available"`
}

// WeeklyAvailability is a doctor's recurring schedule keyed by weekday.
type WeeklyAvailability map[time.Weekday]DayAvailability

// Weekdays in the order they are presented, Monday first.
var Weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

func weekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

func ParseWeekday(s string) (time.Weekday, error) {
	for _, d := range Weekdays {
		if weekdayName(d) == strings.ToLower(s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// DefaultWeeklyAvailability is used for doctors that never saved a schedule.
func DefaultWeeklyAvailability() WeeklyAvailability {
	w := WeeklyAvailability{}
	for _, d := range Weekdays {
		switch d {
		case time.Saturday, time.Sunday:
			w[d] = DayAvailability{Start: NewTimeOfDay(8, 0), End: NewTimeOfDay(12, 0)}
		default:
			w[d] = DayAvailability{Start: NewTimeOfDay(8, 0), End: NewTimeOfDay(17, 0), Available: true}
		}
	}
	return w
}

// Validate requires all seven days and Start < End on every available day.
func (w WeeklyAvailability) Validate() error {
	for _, d := range Weekdays {
		day, ok := w[d]
		if !ok {
			return fmt.Errorf("%s missing: %w", weekdayName(d), ErrInvalidSchedule)
		}
		if day.Available && day.Start >= day.End {
			return fmt.Errorf("%s: start %s not before end %s: %w", weekdayName(d), day.Start, day.End, ErrInvalidSchedule)
		}
	}
	if len(w) != len(Weekdays) {
		return fmt.Errorf("unexpected weekday keys: %w", ErrInvalidSchedule)
	}
	return nil
}

func (w WeeklyAvailability) MarshalJSON() ([]byte, error) {
	out := make(map[string]DayAvailability, len(w))
	for d, day := range w {
		out[weekdayName(d)] = day
	}
	return json.Marshal(out)
}

func (w *WeeklyAvailability) UnmarshalJSON(b []byte) error {
	var raw map[string]DayAvailability
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(WeeklyAvailability, len(raw))
	for name, day := range raw {
		d, err := ParseWeekday(name)
		if err != nil {
			return err
		}
		out[d] = day
	}
	*w = out
	return nil
}

// slotIndex identifies the fixed length slot containing t, on t's own calendar date.
type slotIndex struct {
	year  int
	month time.Month
	day   int
	n     int
}

func slotOf(t time.Time) slotIndex {
	y, m, d := t.Date()
	return slotIndex{y, m, d, int(TimeOfDayOf(t)) / int(SlotLength/time.Minute)}
}

// CheckBookable explains why doctorID cannot be booked at candidate, or returns nil.
// It is agnostic to the current time; past instants are rejected by callers.
func CheckBookable(doctorID uuid.UUID, weekly WeeklyAvailability, candidate time.Time, existing []Appointment) error {
	day, ok := weekly[candidate.Weekday()]
	if !ok || !day.Available {
		return fmt.Errorf("%s: %w", weekdayName(candidate.Weekday()), ErrDoctorUnavailable)
	}

	tod := TimeOfDayOf(candidate)
	if tod < day.Start || tod >= day.End {
		return fmt.Errorf("%s not in [%s, %s): %w", tod, day.Start, day.End, ErrOutsideWorkingHours)
	}

	want := slotOf(candidate)
	for _, a := range existing {
		if a.DoctorID != doctorID || !a.Status.Occupying() {
			continue
		}
		if slotOf(a.ScheduledAt.In(candidate.Location())) == want {
			return fmt.Errorf("held by appointment %s: %w", a.ID, ErrSlotTaken)
		}
	}
	return nil
}

// IsBookable reports whether doctorID can take a new appointment at candidate.
func IsBookable(doctorID uuid.UUID, weekly WeeklyAvailability, candidate time.Time, existing []Appointment) bool {
	return CheckBookable(doctorID, weekly, candidate, existing) == nil
}

// FreeSlots lists the bookable slot instants on date's calendar day. Slots
// before now are skipped unless now is zero.
func FreeSlots(doctorID uuid.UUID, weekly WeeklyAvailability, date time.Time, existing []Appointment, now time.Time) []time.Time {
	var out []time.Time
	for _, s := range Slots {
		at := s.On(date)
		if !now.IsZero() && at.Before(now) {
			continue
		}
		if IsBookable(doctorID, weekly, at, existing) {
			out = append(out, at)
		}
	}
	return out
}
