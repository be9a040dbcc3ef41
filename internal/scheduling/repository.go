package scheduling

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrDepartmentNotFound  = errors.New("department not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is raised by the storage layer when an insert collides with
	// an existing pending or confirmed appointment for the same
	// (doctor, date, time) slot. It is the expected loser outcome of a
	// concurrent booking race, not a fault.
	ErrSlotTaken = errors.New("slot already has an active appointment")
)

// AppointmentFilter narrows ListAppointments. Nil fields are ignored.
type AppointmentFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *AppointmentStatus
	Limit     int
	Offset    int
}

// StatusChange carries the extra fields written alongside a status transition.
type StatusChange struct {
	DoctorNote  *string
	CancelledBy *Role
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetProfileByID(ctx context.Context, id uuid.UUID) (*Profile, error)

	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDoctorByProfileID(ctx context.Context, profileID uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, departmentID *uuid.UUID) ([]DoctorDetail, error)

	ListDepartments(ctx context.Context) ([]Department, error)
	CreateDepartment(ctx context.Context, name, description string) (*Department, error)
	UpdateDepartment(ctx context.Context, id uuid.UUID, name, description string) (*Department, error)

	ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]Availability, error)
	ReplaceAvailability(ctx context.Context, doctorID uuid.UUID, windows []Availability) ([]Availability, error)

	// CreateAppointment inserts a pending appointment. The partial unique
	// index on (doctor_id, appointment_date, appointment_time) over active
	// statuses makes the check-and-insert atomic; a losing concurrent writer
	// gets ErrSlotTaken.
	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error)

	// UpdateAppointmentStatus performs a compare-and-swap transition: the row
	// is updated only if its current status equals from. A miss (row absent
	// or status moved underneath us) returns ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, change StatusChange) (*Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
