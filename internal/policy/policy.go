// Package policy implements the role-based access-control rules for every
// record class. It is the single place that knows who may read or mutate
// what; the scheduling service consults it before every operation.
package policy

import (
	"fmt"

	"github.com/medibook/medibook/internal/scheduling"
)

// Engine evaluates the access-control table. It is stateless: every input it
// needs travels in the caller identity and the resource descriptor, so
// decisions are testable without any storage behind them.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Authorize(caller scheduling.Caller, action scheduling.Action, res scheduling.Resource) scheduling.Decision {
	switch res.Type {
	case scheduling.ResourceDepartment, scheduling.ResourceDoctor:
		return adminManaged(caller, action)
	case scheduling.ResourceProfile:
		return profileRule(caller, action, res)
	case scheduling.ResourceAvailability:
		return availabilityRule(caller, action, res)
	case scheduling.ResourceAppointment:
		return appointmentRule(caller, action, res)
	}
	return scheduling.Deny(fmt.Sprintf("unknown resource type %q", res.Type))
}

// Departments and doctors are public reference data writable only by admins.
func adminManaged(caller scheduling.Caller, action scheduling.Action) scheduling.Decision {
	if action == scheduling.ActionRead {
		return scheduling.Allow()
	}
	if caller.Role == scheduling.RoleAdmin {
		return scheduling.Allow()
	}
	return scheduling.Deny("admin only")
}

func profileRule(caller scheduling.Caller, action scheduling.Action, res scheduling.Resource) scheduling.Decision {
	if action == scheduling.ActionDelete {
		return scheduling.Deny("profiles are never deleted")
	}
	if caller.Role == scheduling.RoleAdmin {
		return scheduling.Allow()
	}
	if res.OwnerProfileID != nil && *res.OwnerProfileID == caller.ProfileID {
		return scheduling.Allow()
	}
	return scheduling.Deny("not your profile")
}

func availabilityRule(caller scheduling.Caller, action scheduling.Action, res scheduling.Resource) scheduling.Decision {
	if action == scheduling.ActionRead {
		return scheduling.Allow()
	}
	if caller.Role == scheduling.RoleAdmin {
		return scheduling.Allow()
	}
	if caller.Role == scheduling.RoleDoctor && caller.DoctorID != nil &&
		res.OwnerDoctorID != nil && *res.OwnerDoctorID == *caller.DoctorID {
		return scheduling.Allow()
	}
	return scheduling.Deny("only the owning doctor or an admin may manage availability")
}

func appointmentRule(caller scheduling.Caller, action scheduling.Action, res scheduling.Resource) scheduling.Decision {
	switch action {
	case scheduling.ActionRead:
		return appointmentReadRule(caller, res)
	case scheduling.ActionCreate:
		return appointmentCreateRule(caller, res)
	case scheduling.ActionUpdate:
		return appointmentUpdateRule(caller, res)
	case scheduling.ActionDelete:
		// Cancellation is a status update, never a delete.
		return scheduling.Deny("appointments are never deleted")
	}
	return scheduling.Deny(fmt.Sprintf("unknown action %q", action))
}

func appointmentReadRule(caller scheduling.Caller, res scheduling.Resource) scheduling.Decision {
	if res.Appointment == nil {
		return scheduling.Deny("no appointment to read")
	}
	switch {
	case caller.Role == scheduling.RoleAdmin:
		return scheduling.Allow()
	case caller.ProfileID == res.Appointment.PatientID:
		return scheduling.Allow()
	case caller.DoctorID != nil && *caller.DoctorID == res.Appointment.DoctorID:
		return scheduling.Allow()
	}
	return scheduling.Deny("not a party to this appointment")
}

func appointmentCreateRule(caller scheduling.Caller, res scheduling.Resource) scheduling.Decision {
	if caller.Role != scheduling.RolePatient {
		return scheduling.Deny("only patients book appointments")
	}
	if res.Appointment == nil || res.Appointment.PatientID != caller.ProfileID {
		return scheduling.Deny("patients book only for themselves")
	}
	if !caller.EmailConfirmed {
		return scheduling.Deny("email not confirmed")
	}
	return scheduling.Allow()
}

// appointmentUpdateRule is transition-aware: identity, role capability, and
// prior status are evaluated as a conjunction. Denials caused purely by the
// appointment's current status are flagged StateConflict so callers can
// report an invalid transition instead of an authorization failure.
func appointmentUpdateRule(caller scheduling.Caller, res scheduling.Resource) scheduling.Decision {
	appt := res.Appointment
	if appt == nil || res.NewStatus == nil {
		return scheduling.Deny("no transition requested")
	}
	to := *res.NewStatus

	switch caller.Role {
	case scheduling.RolePatient:
		if appt.PatientID != caller.ProfileID {
			return scheduling.Deny("not your appointment")
		}
		if to != scheduling.StatusCancelled {
			return scheduling.Deny("patients may only cancel")
		}
		if res.CancelledBy == nil || *res.CancelledBy != scheduling.RolePatient {
			return scheduling.Deny("cancellation must be recorded as by the patient")
		}
		if appt.Status != scheduling.StatusPending {
			return scheduling.DenyState("patients may only cancel pending appointments")
		}
		return scheduling.Allow()

	case scheduling.RoleDoctor:
		if caller.DoctorID == nil || *caller.DoctorID != appt.DoctorID {
			return scheduling.Deny("not your appointment")
		}
		switch to {
		case scheduling.StatusConfirmed, scheduling.StatusRejected:
			if appt.Status != scheduling.StatusPending {
				return scheduling.DenyState("only pending appointments can be decided")
			}
			return scheduling.Allow()
		case scheduling.StatusCancelled:
			if res.CancelledBy == nil || *res.CancelledBy != scheduling.RoleDoctor {
				return scheduling.Deny("cancellation must be recorded as by the doctor")
			}
			if appt.Status != scheduling.StatusPending && appt.Status != scheduling.StatusConfirmed {
				return scheduling.DenyState("appointment is no longer active")
			}
			return scheduling.Allow()
		}
		return scheduling.Deny("doctors may confirm, reject or cancel")

	case scheduling.RoleAdmin:
		return adminTransitionRule(appt.Status, to, res.CancelledBy)
	}

	return scheduling.Deny(fmt.Sprintf("unknown role %q", caller.Role))
}

// Admins may drive any appointment, but only along edges of the state graph:
// terminal states stay terminal even for admins.
func adminTransitionRule(from, to scheduling.AppointmentStatus, cancelledBy *scheduling.Role) scheduling.Decision {
	if from.IsTerminal() {
		return scheduling.DenyState(fmt.Sprintf("appointment is already %s", from))
	}
	switch to {
	case scheduling.StatusConfirmed, scheduling.StatusRejected:
		if from != scheduling.StatusPending {
			return scheduling.DenyState("only pending appointments can be decided")
		}
		return scheduling.Allow()
	case scheduling.StatusCancelled:
		if cancelledBy == nil || *cancelledBy != scheduling.RoleAdmin {
			return scheduling.Deny("cancellation must be recorded as by the admin")
		}
		return scheduling.Allow()
	case scheduling.StatusCompleted:
		if from != scheduling.StatusConfirmed {
			return scheduling.DenyState("only confirmed appointments can be completed")
		}
		return scheduling.Allow()
	}
	return scheduling.Deny(fmt.Sprintf("unknown target status %q", to))
}
