package scheduling

import "github.com/google/uuid"

// Caller is the resolved identity a request acts as.
type Caller struct {
	ProfileID      uuid.UUID
	Role           Role
	DoctorID       *uuid.UUID // set iff Role is doctor
	EmailConfirmed bool
}

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

type ResourceType string

const (
	ResourceDepartment   ResourceType = "department"
	ResourceProfile      ResourceType = "profile"
	ResourceDoctor       ResourceType = "doctor"
	ResourceAvailability ResourceType = "availability"
	ResourceAppointment  ResourceType = "appointment"
)

// Resource describes the target of an authorization check. Only the fields
// relevant to the resource type are set.
type Resource struct {
	Type ResourceType

	// Appointment checks. For updates, NewStatus carries the requested
	// transition and CancelledBy the actor recorded on a cancellation.
	Appointment *Appointment
	NewStatus   *AppointmentStatus
	CancelledBy *Role

	// Ownership for availability rows and profile rows.
	OwnerDoctorID  *uuid.UUID
	OwnerProfileID *uuid.UUID
}

// Decision is the outcome of a policy check. StateConflict marks denials
// where the caller's identity and role were acceptable but the appointment's
// current status makes the requested transition illegal; callers surface
// those as invalid transitions rather than authorization failures.
type Decision struct {
	Allowed       bool
	Reason        string
	StateConflict bool
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Reason: reason}
}

func DenyState(reason string) Decision {
	return Decision{Reason: reason, StateConflict: true}
}

// Authorizer decides whether a caller may perform an action on a resource.
type Authorizer interface {
	Authorize(caller Caller, action Action, res Resource) Decision
}
