package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusRejected  AppointmentStatus = "rejected"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Profile struct {
	ID             uuid.UUID
	FullName       string
	Phone          *string
	Role           Role
	EmailConfirmed bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Department struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Doctor struct {
	ID              uuid.UUID
	ProfileID       uuid.UUID
	DepartmentID    *uuid.UUID
	Specialty       string
	Bio             string
	ExperienceYears int
	PhotoURL        *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Availability is a weekly recurring window a doctor declares bookable.
// It is advisory display data only; bookings are not validated against it.
type Availability struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Weekday   int // 0 = Sunday .. 6 = Saturday
	StartTime string
	EndTime   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	DepartmentID    *uuid.UUID
	AppointmentDate string // YYYY-MM-DD
	AppointmentTime string // HH:MM
	Status          AppointmentStatus
	PatientNote     *string
	DoctorNote      *string
	CancelledBy     *Role
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AppointmentDetail is an appointment hydrated with the names a list view needs.
type AppointmentDetail struct {
	Appointment
	PatientName    string
	DoctorName     string
	DepartmentName *string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// DoctorDetail is a doctor joined with profile and department reference data.
type DoctorDetail struct {
	Doctor
	FullName       string
	DepartmentName *string
}
