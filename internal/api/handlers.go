package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medibook/medibook/internal/scheduling"
)

func createAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no caller identity")
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		appt, err := svc.Create(r.Context(), *caller, scheduling.CreateParams{
			DoctorID: doctorID,
			Date:     req.Date,
			Time:     req.Time,
			Note:     req.Note,
		})
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no caller identity")
			return
		}

		var f scheduling.AppointmentFilter
		q := r.URL.Query()

		if v := q.Get("status"); v != "" {
			status := scheduling.AppointmentStatus(v)
			f.Status = &status
		}
		if v := q.Get("doctor_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			f.DoctorID = &id
		}
		if v := q.Get("patient_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			f.PatientID = &id
		}
		f.Limit, _ = strconv.Atoi(q.Get("limit"))
		f.Offset, _ = strconv.Atoi(q.Get("offset"))

		appts, err := svc.List(r.Context(), *caller, f)
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			resp = append(resp, toAppointmentDetailResponse(a))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func decideAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no caller identity")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req DecideAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		outcome := scheduling.AppointmentStatus(req.Outcome)
		if outcome != scheduling.StatusConfirmed && outcome != scheduling.StatusRejected {
			writeError(w, http.StatusBadRequest, "invalid_outcome", "outcome must be confirmed or rejected")
			return
		}

		appt, err := svc.Decide(r.Context(), *caller, id, outcome, req.Note)
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no caller identity")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), *caller, id)
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no caller identity")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Complete(r.Context(), *caller, id)
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listDoctorsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var departmentID *uuid.UUID
		if v := r.URL.Query().Get("department_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_department_id", "department_id must be a valid UUID")
				return
			}
			departmentID = &id
		}

		doctors, err := svc.ListDoctors(r.Context(), departmentID)
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			resp = append(resp, DoctorResponse{
				ID:              d.ID,
				FullName:        d.FullName,
				DepartmentID:    d.DepartmentID,
				DepartmentName:  d.DepartmentName,
				Specialty:       d.Specialty,
				Bio:             d.Bio,
				ExperienceYears: d.ExperienceYears,
				PhotoURL:        d.PhotoURL,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listDepartmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps, err := svc.ListDepartments(r.Context())
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		resp := make([]DepartmentResponse, 0, len(deps))
		for _, d := range deps {
			resp = append(resp, DepartmentResponse{ID: d.ID, Name: d.Name, Description: d.Description})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createDepartmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no caller identity")
			return
		}

		var req DepartmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_name", "name is required")
			return
		}

		dep, err := svc.CreateDepartment(r.Context(), *caller, req.Name, req.Description)
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, DepartmentResponse{ID: dep.ID, Name: dep.Name, Description: dep.Description})
	}
}

func updateDepartmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no caller identity")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_department_id", "id must be a valid UUID")
			return
		}

		var req DepartmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_name", "name is required")
			return
		}

		dep, err := svc.UpdateDepartment(r.Context(), *caller, id, req.Name, req.Description)
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, DepartmentResponse{ID: dep.ID, Name: dep.Name, Description: dep.Description})
	}
}

func listAvailabilityHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		windows, err := svc.ListAvailability(r.Context(), doctorID)
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		resp := make([]AvailabilityWindow, 0, len(windows))
		for _, win := range windows {
			resp = append(resp, AvailabilityWindow{Weekday: win.Weekday, StartTime: win.StartTime, EndTime: win.EndTime})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func setAvailabilityHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "no caller identity")
			return
		}

		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		var req SetAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		windows := make([]scheduling.Availability, 0, len(req.Windows))
		for _, win := range req.Windows {
			windows = append(windows, scheduling.Availability{
				DoctorID:  doctorID,
				Weekday:   win.Weekday,
				StartTime: win.StartTime,
				EndTime:   win.EndTime,
			})
		}

		saved, err := svc.SetAvailability(r.Context(), *caller, doctorID, windows)
		if err != nil {
			writeSchedulingError(w, r, err)
			return
		}

		resp := make([]AvailabilityWindow, 0, len(saved))
		for _, win := range saved {
			resp = append(resp, AvailabilityWindow{Weekday: win.Weekday, StartTime: win.StartTime, EndTime: win.EndTime})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
