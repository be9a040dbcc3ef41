package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medibook/medibook/internal/scheduling"
)

type CreateAppointmentRequest struct {
	DoctorID string  `json:"doctor_id"`
	Date     string  `json:"date"` // YYYY-MM-DD
	Time     string  `json:"time"` // HH:MM
	Note     *string `json:"note,omitempty"`
}

type DecideAppointmentRequest struct {
	Outcome string  `json:"outcome"` // confirmed or rejected
	Note    *string `json:"note,omitempty"`
}

type AppointmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	DoctorID       uuid.UUID  `json:"doctor_id"`
	DepartmentID   *uuid.UUID `json:"department_id,omitempty"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	Status         string     `json:"status"`
	PatientNote    *string    `json:"patient_note,omitempty"`
	DoctorNote     *string    `json:"doctor_note,omitempty"`
	CancelledBy    *string    `json:"cancelled_by,omitempty"`
	PatientName    string     `json:"patient_name,omitempty"`
	DoctorName     string     `json:"doctor_name,omitempty"`
	DepartmentName *string    `json:"department_name,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:           a.ID,
		PatientID:    a.PatientID,
		DoctorID:     a.DoctorID,
		DepartmentID: a.DepartmentID,
		Date:         a.AppointmentDate,
		Time:         a.AppointmentTime,
		Status:       string(a.Status),
		PatientNote:  a.PatientNote,
		DoctorNote:   a.DoctorNote,
		CreatedAt:    a.CreatedAt,
	}
	if a.CancelledBy != nil {
		by := string(*a.CancelledBy)
		resp.CancelledBy = &by
	}
	return resp
}

func toAppointmentDetailResponse(d scheduling.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(&d.Appointment)
	resp.PatientName = d.PatientName
	resp.DoctorName = d.DoctorName
	resp.DepartmentName = d.DepartmentName
	return resp
}

type DoctorResponse struct {
	ID              uuid.UUID  `json:"id"`
	FullName        string     `json:"full_name"`
	DepartmentID    *uuid.UUID `json:"department_id,omitempty"`
	DepartmentName  *string    `json:"department_name,omitempty"`
	Specialty       string     `json:"specialty"`
	Bio             string     `json:"bio,omitempty"`
	ExperienceYears int        `json:"experience_years"`
	PhotoURL        *string    `json:"photo_url,omitempty"`
}

type DepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type DepartmentResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

type AvailabilityWindow struct {
	Weekday   int    `json:"weekday"` // 0 = Sunday .. 6 = Saturday
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type SetAvailabilityRequest struct {
	Windows []AvailabilityWindow `json:"windows"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
