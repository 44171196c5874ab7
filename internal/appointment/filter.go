package appointment

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// When selects appointments relative to the current instant.
type When string

const (
	WhenAll      When = "all"
	WhenToday    When = "today"
	WhenUpcoming When = "upcoming"
	WhenPast     When = "past"
)

func ParseWhen(s string) (When, error) {
	switch w := When(s); w {
	case "":
		return WhenAll, nil
	case WhenAll, WhenToday, WhenUpcoming, WhenPast:
		return w, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// FilterByWhen keeps the appointments matching when, judged against now.
// Upcoming excludes cancelled appointments.
func FilterByWhen(appts []Appointment, when When, now time.Time) []Appointment {
	out := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		keep := false
		switch when {
		case WhenAll:
			keep = true
		case WhenToday:
			keep = sameDate(now, a.ScheduledAt)
		case WhenUpcoming:
			keep = !a.ScheduledAt.Before(now) && a.Status != StatusCancelled
		case WhenPast:
			keep = a.ScheduledAt.Before(now)
		}
		if keep {
			out = append(out, a)
		}
	}
	return out
}

func FilterByStatus(appts []Appointment, status Status) []Appointment {
	out := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}

// SortBySchedule orders appts by ScheduledAt, then ID, in place.
func SortBySchedule(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if !appts[i].ScheduledAt.Equal(appts[j].ScheduledAt) {
			return appts[i].ScheduledAt.Before(appts[j].ScheduledAt)
		}
		return appts[i].ID.String() < appts[j].ID.String()
	})
}

type Summary struct {
	Today        int            `json:"today"`
	UpcomingWeek int            `json:"upcoming_week"`
	Pending      int            `json:"pending"`
	ByStatus     map[Status]int `json:"by_status"`
}

// Summarize counts appts for a dashboard view. UpcomingWeek covers (now, now+7d].
func Summarize(appts []Appointment, now time.Time) Summary {
	s := Summary{ByStatus: make(map[Status]int, len(Statuses))}
	weekEnd := now.Add(7 * 24 * time.Hour)
	for _, a := range appts {
		s.ByStatus[a.Status]++
		if a.Status == StatusPending {
			s.Pending++
		}
		if sameDate(now, a.ScheduledAt) {
			s.Today++
		}
		if a.ScheduledAt.After(now) && !a.ScheduledAt.After(weekEnd) {
			s.UpcomingWeek++
		}
	}
	return s
}

// NewlyPending returns the appointments pending in curr that were not pending
// in prev, ordered by ScheduledAt.
func NewlyPending(prev, curr []Appointment) []Appointment {
	seen := make(map[uuid.UUID]bool, len(prev))
	for _, a := range prev {
		if a.Status == StatusPending {
			seen[a.ID] = true
		}
	}

	var out []Appointment
	for _, a := range curr {
		if a.Status == StatusPending && !seen[a.ID] {
			out = append(out, a)
		}
	}
	SortBySchedule(out)
	return out
}
