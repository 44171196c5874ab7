package api

import (
	"net/http"

	"github.com/hackgods/clinic-appointments/internal/access"
	"github.com/hackgods/clinic-appointments/internal/account"
)

func loginHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		session, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, session)
	}
}

func registerHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in account.NewUser
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		u, err := svc.Register(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, u)
	}
}

func meHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		u, err := svc.GetUser(r.Context(), actor.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, u)
	}
}

func createUserHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var in account.NewUser
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		u, err := svc.CreateUser(r.Context(), actor, in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, u)
	}
}

func listUsersHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var role *access.Role
		if raw := r.URL.Query().Get("role"); raw != "" {
			parsed, err := access.ParseRole(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_role", err.Error())
				return
			}
			role = &parsed
		}

		users, err := svc.ListUsers(r.Context(), actor, role)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if users == nil {
			users = []account.User{}
		}

		writeJSON(w, http.StatusOK, users)
	}
}

func listSpecialtiesHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specialties, err := svc.ListSpecialties(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if specialties == nil {
			specialties = []account.Specialty{}
		}

		writeJSON(w, http.StatusOK, specialties)
	}
}

func createSpecialtyHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req CreateSpecialtyRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		s, err := svc.CreateSpecialty(r.Context(), actor, req.Name, req.Description)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, s)
	}
}

func deleteSpecialtyHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.DeleteSpecialty(r.Context(), actor, id); err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func specialtyDoctorsHandler(svc AccountService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		doctors, err := svc.DoctorsBySpecialty(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if doctors == nil {
			doctors = []account.User{}
		}

		writeJSON(w, http.StatusOK, doctors)
	}
}
