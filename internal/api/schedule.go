package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/access"
	"github.com/hackgods/clinic-appointments/internal/account"
	"github.com/hackgods/clinic-appointments/internal/appointment"
)

func doctorAvailabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		weekly, err := svc.WeeklyAvailability(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, weekly)
	}
}

// doctorSlotsHandler lists free slots for ?date=YYYY-MM-DD on the clinic clock.
func doctorSlotsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		raw := r.URL.Query().Get("date")
		date, err := time.ParseInLocation("2006-01-02", raw, svc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.FreeSlots(r.Context(), id, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if slots == nil {
			slots = []time.Time{}
		}

		writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: id, Date: raw, Slots: slots})
	}
}

func availableDoctorsHandler(svc AppointmentService, accounts AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		specialtyID, err := uuid.Parse(q.Get("specialty_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_specialty_id", "specialty_id must be a valid UUID")
			return
		}
		at, err := time.Parse(time.RFC3339, q.Get("at"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_at", "at must be RFC 3339")
			return
		}

		ids, err := svc.AvailableDoctors(r.Context(), specialtyID, at)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		doctors := make([]account.User, 0, len(ids))
		for _, id := range ids {
			u, err := accounts.GetUser(r.Context(), id)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			doctors = append(doctors, *u)
		}

		writeJSON(w, http.StatusOK, doctors)
	}
}

func getScheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		if err := access.Require(actor.Role, access.ActionManageOwnSchedule, true); err != nil {
			writeServiceError(w, r, err)
			return
		}

		weekly, err := svc.WeeklyAvailability(r.Context(), actor.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, weekly)
	}
}

func updateScheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var weekly appointment.WeeklyAvailability
		if err := decodeJSON(r, &weekly); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		saved, err := svc.UpdateSchedule(r.Context(), actor, weekly)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, saved)
	}
}
