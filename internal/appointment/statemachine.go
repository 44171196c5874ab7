package appointment

import (
	"fmt"

	"github.com/hackgods/clinic-appointments/internal/access"
)

// Edge is one legal status change and the policy action that gates it.
type Edge struct {
	From   Status
	To     Status
	Action access.Action
}

// AllowedRoles derives the roles for an edge from the policy table.
func (e Edge) AllowedRoles() []access.Role {
	return access.AllowedRoles(e.Action)
}

var transitions = map[Status][]Edge{
	StatusPending: {
		{From: StatusPending, To: StatusConfirmed, Action: access.ActionConfirmAppointment},
		{From: StatusPending, To: StatusCancelled, Action: access.ActionCancelAppointment},
	},
	StatusConfirmed: {
		{From: StatusConfirmed, To: StatusCancelled, Action: access.ActionCancelConfirmedAppointment},
		{From: StatusConfirmed, To: StatusCompleted, Action: access.ActionCompleteAppointment},
	},
}

// Edges returns a copy of the full transition table.
func Edges() []Edge {
	var out []Edge
	for _, from := range Statuses {
		out = append(out, transitions[from]...)
	}
	return out
}

func findEdge(from, to Status) (Edge, bool) {
	for _, e := range transitions[from] {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// Transition returns appt moved to target, or the reason it cannot move.
// It performs no I/O; the caller persists the result.
func Transition(appt Appointment, target Status, actor access.Actor) (Appointment, error) {
	isOwner := appt.PatientID == actor.ID
	if !actor.Role.IsStaff() && !(actor.Role == access.RolePatient && isOwner) {
		return Appointment{}, fmt.Errorf("%s is not the owner of appointment %s: %w", actor, appt.ID, ErrUnauthorized)
	}

	edge, ok := findEdge(appt.Status, target)
	if !ok {
		return Appointment{}, fmt.Errorf("%s -> %s: %w", appt.Status, target, ErrInvalidTransition)
	}

	if err := access.Require(actor.Role, edge.Action, isOwner); err != nil {
		return Appointment{}, err
	}

	next := appt
	next.Status = target
	return next, nil
}

// CheckDeletion decides whether actor may physically delete appt.
// Patients may delete their own cancelled appointments; staff may delete any
// appointment in a terminal state.
func CheckDeletion(appt Appointment, actor access.Actor) error {
	isOwner := appt.PatientID == actor.ID
	if err := access.Require(actor.Role, access.ActionDeleteAppointment, isOwner); err != nil {
		return err
	}

	switch {
	case actor.Role == access.RolePatient && appt.Status != StatusCancelled:
		return fmt.Errorf("patient delete of %s appointment: %w", appt.Status, ErrInvalidDeletion)
	case !appt.Status.Terminal():
		return fmt.Errorf("delete of %s appointment: %w", appt.Status, ErrInvalidDeletion)
	}
	return nil
}
