// Package access holds the role based permission table shared by the booking core
// and the HTTP layer. Every permission decision in the service goes through CanPerform.
package access

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("not authorized")

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Roles lists every valid role in a stable order.
var Roles = []Role{RolePatient, RoleDoctor, RoleAdmin}

// ParseRole accepts only the three known role names.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// IsStaff reports whether the role acts on appointments it does not own.
func (r Role) IsStaff() bool {
	return r == RoleDoctor || r == RoleAdmin
}

type Action string

const (
	ActionCreateAppointment          Action = "createAppointment"
	ActionConfirmAppointment         Action = "confirmAppointment"
	ActionCancelAppointment          Action = "cancelAppointment" // pending appointments
	ActionCancelConfirmedAppointment Action = "cancelConfirmedAppointment"
	ActionCompleteAppointment        Action = "completeAppointment"
	ActionDeleteAppointment          Action = "deleteAppointment"
	ActionCreateDoctorAccount        Action = "createDoctorAccount"
	ActionCreateAdminAccount         Action = "createAdminAccount"
	ActionManageSpecialties          Action = "manageSpecialties"
	ActionManageAllAppointments      Action = "manageAllAppointments"
	ActionViewOwnAppointments        Action = "viewOwnAppointments"
	ActionManageOwnSchedule          Action = "manageOwnSchedule"
	ActionManageUsers                Action = "manageUsers"
)

// grant describes who may perform an action. ownerOnly applies to patients only.
type grant struct {
	patient, doctor, admin bool
	patientOwnerOnly       bool
}

var table = map[Action]grant{
	ActionCreateAppointment:          {patient: true, patientOwnerOnly: true},
	ActionConfirmAppointment:         {doctor: true, admin: true},
	ActionCancelAppointment:          {patient: true, patientOwnerOnly: true, doctor: true, admin: true},
	ActionCancelConfirmedAppointment: {doctor: true, admin: true},
	ActionCompleteAppointment:        {doctor: true, admin: true},
	ActionDeleteAppointment:          {patient: true, patientOwnerOnly: true, doctor: true, admin: true},
	ActionCreateDoctorAccount:        {admin: true},
	ActionCreateAdminAccount:         {admin: true},
	ActionManageSpecialties:          {admin: true},
	ActionManageAllAppointments:      {admin: true},
	ActionViewOwnAppointments:        {patient: true, doctor: true, admin: true},
	ActionManageOwnSchedule:          {doctor: true},
	ActionManageUsers:                {admin: true},
}

// Actions lists every action known to the policy table.
func Actions() []Action {
	return []Action{
		ActionCreateAppointment,
		ActionConfirmAppointment,
		ActionCancelAppointment,
		ActionCancelConfirmedAppointment,
		ActionCompleteAppointment,
		ActionDeleteAppointment,
		ActionCreateDoctorAccount,
		ActionCreateAdminAccount,
		ActionManageSpecialties,
		ActionManageAllAppointments,
		ActionViewOwnAppointments,
		ActionManageOwnSchedule,
		ActionManageUsers,
	}
}

// CanPerform is the single source of truth for permission decisions.
// Unknown roles and actions are denied.
func CanPerform(role Role, action Action, isOwner bool) bool {
	g, ok := table[action]
	if !ok {
		return false
	}
	switch role {
	case RolePatient:
		return g.patient && (!g.patientOwnerOnly || isOwner)
	case RoleDoctor:
		return g.doctor
	case RoleAdmin:
		return g.admin
	default:
		return false
	}
}

// Require is CanPerform for boundary callers that need an error instead of a bool.
func Require(role Role, action Action, isOwner bool) error {
	if !CanPerform(role, action, isOwner) {
		return fmt.Errorf("%s may not %s: %w", role, action, ErrUnauthorized)
	}
	return nil
}

// AllowedRoles returns the roles that can perform action, assuming ownership.
func AllowedRoles(action Action) []Role {
	var out []Role
	for _, r := range Roles {
		if CanPerform(r, action, true) {
			out = append(out, r)
		}
	}
	return out
}

// Actor is the authenticated caller, passed explicitly to every operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) String() string {
	return fmt.Sprintf("%s:%s", a.Role, a.ID)
}
