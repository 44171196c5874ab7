package appointment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/access"
)

func newAppt(status Status, patientID uuid.UUID) Appointment {
	return Appointment{
		ID:          uuid.New(),
		PatientID:   patientID,
		DoctorID:    uuid.New(),
		SpecialtyID: uuid.New(),
		ScheduledAt: monday(9, 0),
		Status:      status,
		Notes:       "checkup",
	}
}

func TestTransition_PatientCancelsOwnPending(t *testing.T) {
	owner := uuid.New()
	appt := newAppt(StatusPending, owner)

	got, err := Transition(appt, StatusCancelled, access.Actor{ID: owner, Role: access.RolePatient})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// everything else is unchanged
	got.Status = appt.Status
	assert.Equal(t, appt, got)
}

func TestTransition_PatientCannotCancelConfirmed(t *testing.T) {
	owner := uuid.New()
	appt := newAppt(StatusConfirmed, owner)

	_, err := Transition(appt, StatusCancelled, access.Actor{ID: owner, Role: access.RolePatient})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTransition_CompletedIsTerminal(t *testing.T) {
	appt := newAppt(StatusCompleted, uuid.New())

	_, err := Transition(appt, StatusConfirmed, access.Actor{ID: uuid.New(), Role: access.RoleAdmin})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_PatientNotOwner(t *testing.T) {
	appt := newAppt(StatusPending, uuid.New())

	_, err := Transition(appt, StatusCancelled, access.Actor{ID: uuid.New(), Role: access.RolePatient})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTransition_UnknownRoleRejected(t *testing.T) {
	appt := newAppt(StatusPending, uuid.New())

	_, err := Transition(appt, StatusConfirmed, access.Actor{ID: uuid.New(), Role: "nurse"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestTransition_Matrix(t *testing.T) {
	owner := uuid.New()
	actors := map[string]access.Actor{
		"patient": {ID: owner, Role: access.RolePatient},
		"doctor":  {ID: uuid.New(), Role: access.RoleDoctor},
		"admin":   {ID: uuid.New(), Role: access.RoleAdmin},
	}

	type want struct {
		patient, doctor, admin error
	}
	cases := map[[2]Status]want{
		{StatusPending, StatusConfirmed}:   {ErrUnauthorized, nil, nil},
		{StatusPending, StatusCancelled}:   {nil, nil, nil},
		{StatusPending, StatusCompleted}:   {ErrInvalidTransition, ErrInvalidTransition, ErrInvalidTransition},
		{StatusPending, StatusPending}:     {ErrInvalidTransition, ErrInvalidTransition, ErrInvalidTransition},
		{StatusConfirmed, StatusCancelled}: {ErrUnauthorized, nil, nil},
		{StatusConfirmed, StatusCompleted}: {ErrUnauthorized, nil, nil},
		{StatusConfirmed, StatusPending}:   {ErrInvalidTransition, ErrInvalidTransition, ErrInvalidTransition},
	}
	for _, from := range []Status{StatusCancelled, StatusCompleted} {
		for _, to := range Statuses {
			cases[[2]Status{from, to}] = want{ErrInvalidTransition, ErrInvalidTransition, ErrInvalidTransition}
		}
	}

	for pair, w := range cases {
		expected := map[string]error{"patient": w.patient, "doctor": w.doctor, "admin": w.admin}
		for name, actor := range actors {
			appt := newAppt(pair[0], owner)
			got, err := Transition(appt, pair[1], actor)
			if expected[name] == nil {
				require.NoError(t, err, "%s %s->%s", name, pair[0], pair[1])
				assert.Equal(t, pair[1], got.Status)
			} else {
				assert.ErrorIs(t, err, expected[name], "%s %s->%s", name, pair[0], pair[1])
			}
		}
	}
}

func TestEdges_FormDAGWithTerminalSinks(t *testing.T) {
	edges := Edges()
	require.Len(t, edges, 4)

	out := map[Status][]Status{}
	for _, e := range edges {
		out[e.From] = append(out[e.From], e.To)
		assert.NotEmpty(t, e.AllowedRoles(), "edge %s->%s has no roles", e.From, e.To)
	}

	assert.Empty(t, out[StatusCancelled])
	assert.Empty(t, out[StatusCompleted])

	// depth first search for cycles
	const (
		unvisited = iota
		inProgress
		done
	)
	state := map[Status]int{}
	var visit func(s Status)
	visit = func(s Status) {
		state[s] = inProgress
		for _, next := range out[s] {
			require.NotEqual(t, inProgress, state[next], "cycle through %s", next)
			if state[next] == unvisited {
				visit(next)
			}
		}
		state[s] = done
	}
	visit(StatusPending)

	for _, s := range Statuses {
		assert.Equal(t, done, state[s], "%s unreachable from pending", s)
	}
}

func TestEdges_RolesAgreeWithPolicy(t *testing.T) {
	for _, e := range Edges() {
		roles := e.AllowedRoles()
		if e.From == StatusConfirmed {
			assert.NotContains(t, roles, access.RolePatient)
		}
		if e.To == StatusConfirmed || e.To == StatusCompleted {
			assert.ElementsMatch(t, []access.Role{access.RoleDoctor, access.RoleAdmin}, roles)
		}
	}
}

func TestCheckDeletion(t *testing.T) {
	owner := uuid.New()
	patient := access.Actor{ID: owner, Role: access.RolePatient}
	doctor := access.Actor{ID: uuid.New(), Role: access.RoleDoctor}
	admin := access.Actor{ID: uuid.New(), Role: access.RoleAdmin}

	assert.ErrorIs(t, CheckDeletion(newAppt(StatusPending, owner), patient), ErrInvalidDeletion)
	assert.NoError(t, CheckDeletion(newAppt(StatusCancelled, owner), patient))
	assert.ErrorIs(t, CheckDeletion(newAppt(StatusCompleted, owner), patient), ErrInvalidDeletion)
	assert.ErrorIs(t, CheckDeletion(newAppt(StatusCancelled, uuid.New()), patient), ErrUnauthorized)

	for _, staff := range []access.Actor{doctor, admin} {
		assert.NoError(t, CheckDeletion(newAppt(StatusCancelled, owner), staff))
		assert.NoError(t, CheckDeletion(newAppt(StatusCompleted, owner), staff))
		assert.ErrorIs(t, CheckDeletion(newAppt(StatusPending, owner), staff), ErrInvalidDeletion)
		assert.ErrorIs(t, CheckDeletion(newAppt(StatusConfirmed, owner), staff), ErrInvalidDeletion)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("expired")
	assert.Error(t, err)
}
