package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/medibook/medibook/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentRejected  = "APPOINTMENT_REJECTED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var (
	ErrForbidden         = errors.New("operation not permitted")
	ErrInvalidSlot       = errors.New("invalid or past appointment slot")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidWindow     = errors.New("invalid availability window")
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// ChangeEvent is published to the notification feed after a mutation commits.
// It is a hint to re-read, not the state of record.
type ChangeEvent struct {
	Event         string            `json:"event"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	DoctorID      uuid.UUID         `json:"doctor_id"`
	PatientID     uuid.UUID         `json:"patient_id"`
	Status        AppointmentStatus `json:"status"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// Publisher fans committed appointment changes out to subscribers.
type Publisher interface {
	PublishAppointmentChange(ctx context.Context, ev ChangeEvent) error
}

type CreateParams struct {
	DoctorID uuid.UUID
	Date     string // YYYY-MM-DD
	Time     string // HH:MM
	Note     *string
}

type Service struct {
	repo      Repository
	authz     Authorizer
	locker    redisclient.Locker
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, authz Authorizer, locker redisclient.Locker, publisher Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		authz:     authz,
		locker:    locker,
		publisher: publisher,
		logger:    logger.With().Str("component", "scheduling").Logger(),
		now:       time.Now,
	}
}

// Create books a pending appointment for the calling patient. The check for
// an existing active appointment on the same (doctor, date, time) slot and
// the insert are indivisible: the partial unique index makes the losing side
// of a race fail with ErrSlotTaken. The Redis slot lock only serializes the
// common case so most races never reach the constraint.
func (s *Service) Create(ctx context.Context, caller Caller, p CreateParams) (*Appointment, error) {
	if err := validateSlot(p.Date, p.Time, s.now()); err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID:       caller.ProfileID,
		DoctorID:        p.DoctorID,
		AppointmentDate: p.Date,
		AppointmentTime: p.Time,
		Status:          StatusPending,
		PatientNote:     p.Note,
	}

	if dec := s.authz.Authorize(caller, ActionCreate, Resource{Type: ResourceAppointment, Appointment: appt}); !dec.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, dec.Reason)
	}

	doctor, err := s.repo.GetDoctorByID(ctx, p.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	appt.DepartmentID = doctor.DepartmentID

	var created *Appointment
	insert := func(ctx context.Context) error {
		c, err := s.repo.CreateAppointment(ctx, appt)
		if err != nil {
			return err
		}
		created = c
		return nil
	}

	key := redisclient.SlotKey(p.DoctorID, p.Date, p.Time)
	err = s.locker.WithSlotLock(ctx, key, insert)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		// Lock contention means someone is booking the same slot right now.
		// Insert anyway; the unique index picks exactly one winner.
		err = insert(ctx)
	case errors.Is(err, redisclient.ErrLockUnavailable):
		// Redis being down never blocks booking: the lock only shapes
		// contention, the unique index carries correctness.
		s.logger.Warn().Err(err).Str("key", key).Msg("slot lock unavailable, relying on unique index")
		err = insert(ctx)
	}
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.recordChange(ctx, created, EventAppointmentCreated, map[string]any{
		"doctor_id":  p.DoctorID.String(),
		"patient_id": caller.ProfileID.String(),
		"date":       p.Date,
		"time":       p.Time,
	})

	return created, nil
}

// Decide moves a pending appointment to confirmed or rejected on behalf of
// the assigned doctor (or an admin).
func (s *Service) Decide(ctx context.Context, caller Caller, id uuid.UUID, outcome AppointmentStatus, note *string) (*Appointment, error) {
	if outcome != StatusConfirmed && outcome != StatusRejected {
		return nil, fmt.Errorf("%w: decision must be confirmed or rejected", ErrInvalidTransition)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	dec := s.authz.Authorize(caller, ActionUpdate, Resource{
		Type:        ResourceAppointment,
		Appointment: appt,
		NewStatus:   &outcome,
	})
	if !dec.Allowed {
		return nil, denial(dec)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusPending, outcome, StatusChange{DoctorNote: note})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// The row existed a moment ago: its status moved underneath us.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("decide appointment: %w", err)
	}

	event := EventAppointmentConfirmed
	if outcome == StatusRejected {
		event = EventAppointmentRejected
	}
	s.recordChange(ctx, updated, event, map[string]any{"by": string(caller.Role)})

	return updated, nil
}

// Cancel marks an appointment cancelled and records who cancelled it.
// Patients may only cancel their own pending appointments; doctors their own
// pending or confirmed ones; admins any non-terminal appointment.
func (s *Service) Cancel(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	target := StatusCancelled
	by := caller.Role
	dec := s.authz.Authorize(caller, ActionUpdate, Resource{
		Type:        ResourceAppointment,
		Appointment: appt,
		NewStatus:   &target,
		CancelledBy: &by,
	})
	if !dec.Allowed {
		return nil, denial(dec)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, StatusCancelled, StatusChange{CancelledBy: &by})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.recordChange(ctx, updated, EventAppointmentCancelled, map[string]any{"cancelled_by": string(by)})

	return updated, nil
}

// Complete marks a confirmed appointment completed. Admin only; there is no
// automatic completion sweep.
func (s *Service) Complete(ctx context.Context, caller Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	target := StatusCompleted
	dec := s.authz.Authorize(caller, ActionUpdate, Resource{
		Type:        ResourceAppointment,
		Appointment: appt,
		NewStatus:   &target,
	})
	if !dec.Allowed {
		return nil, denial(dec)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusConfirmed, StatusCompleted, StatusChange{})
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.recordChange(ctx, updated, EventAppointmentCompleted, map[string]any{"by": string(caller.Role)})

	return updated, nil
}

// List returns appointments visible to the caller, ordered by date then time.
// Patients and doctors are always scoped to their own rows regardless of the
// requested filter; admins see whatever the filter selects.
func (s *Service) List(ctx context.Context, caller Caller, f AppointmentFilter) ([]AppointmentDetail, error) {
	switch caller.Role {
	case RolePatient:
		pid := caller.ProfileID
		f.PatientID = &pid
	case RoleDoctor:
		if caller.DoctorID == nil {
			return nil, fmt.Errorf("%w: doctor identity has no doctor record", ErrForbidden)
		}
		f.DoctorID = caller.DoctorID
	case RoleAdmin:
		// unrestricted
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrForbidden, caller.Role)
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) ListDoctors(ctx context.Context, departmentID *uuid.UUID) ([]DoctorDetail, error) {
	doctors, err := s.repo.ListDoctors(ctx, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	deps, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return deps, nil
}

func (s *Service) CreateDepartment(ctx context.Context, caller Caller, name, description string) (*Department, error) {
	if dec := s.authz.Authorize(caller, ActionCreate, Resource{Type: ResourceDepartment}); !dec.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, dec.Reason)
	}

	dep, err := s.repo.CreateDepartment(ctx, name, description)
	if err != nil {
		return nil, fmt.Errorf("create department: %w", err)
	}
	return dep, nil
}

func (s *Service) UpdateDepartment(ctx context.Context, caller Caller, id uuid.UUID, name, description string) (*Department, error) {
	if dec := s.authz.Authorize(caller, ActionUpdate, Resource{Type: ResourceDepartment}); !dec.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, dec.Reason)
	}

	dep, err := s.repo.UpdateDepartment(ctx, id, name, description)
	if err != nil {
		if errors.Is(err, ErrDepartmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update department: %w", err)
	}
	return dep, nil
}

func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]Availability, error) {
	windows, err := s.repo.ListAvailability(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return windows, nil
}

// SetAvailability replaces a doctor's weekly windows. Windows are advisory
// display data; bookings are never validated against them.
func (s *Service) SetAvailability(ctx context.Context, caller Caller, doctorID uuid.UUID, windows []Availability) ([]Availability, error) {
	dec := s.authz.Authorize(caller, ActionUpdate, Resource{
		Type:          ResourceAvailability,
		OwnerDoctorID: &doctorID,
	})
	if !dec.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, dec.Reason)
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	for _, w := range windows {
		if w.Weekday < 0 || w.Weekday > 6 {
			return nil, fmt.Errorf("%w: weekday %d out of range", ErrInvalidWindow, w.Weekday)
		}
		start, err := time.Parse(timeLayout, w.StartTime)
		if err != nil {
			return nil, fmt.Errorf("%w: bad start time %q", ErrInvalidWindow, w.StartTime)
		}
		end, err := time.Parse(timeLayout, w.EndTime)
		if err != nil {
			return nil, fmt.Errorf("%w: bad end time %q", ErrInvalidWindow, w.EndTime)
		}
		if !start.Before(end) {
			return nil, fmt.Errorf("%w: start %s not before end %s", ErrInvalidWindow, w.StartTime, w.EndTime)
		}
	}

	saved, err := s.repo.ReplaceAvailability(ctx, doctorID, windows)
	if err != nil {
		return nil, fmt.Errorf("replace availability: %w", err)
	}
	return saved, nil
}

func denial(dec Decision) error {
	if dec.StateConflict {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, dec.Reason)
	}
	return fmt.Errorf("%w: %s", ErrForbidden, dec.Reason)
}

func validateSlot(date, timeOfDay string, now time.Time) error {
	d, err := time.ParseInLocation(dateLayout, date, now.Location())
	if err != nil {
		return fmt.Errorf("%w: bad date %q", ErrInvalidSlot, date)
	}
	t, err := time.Parse(timeLayout, timeOfDay)
	if err != nil {
		return fmt.Errorf("%w: bad time %q", ErrInvalidSlot, timeOfDay)
	}

	at := time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if at.Before(now) {
		return fmt.Errorf("%w: %s %s is in the past", ErrInvalidSlot, date, timeOfDay)
	}
	return nil
}

// recordChange writes the audit event and publishes the change notification.
// Both are best effort: the mutation has already committed and must not be
// reported as failed because a side channel hiccuped.
func (s *Service) recordChange(ctx context.Context, appt *Appointment, event string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("marshal event payload")
		data = nil
	}

	apptID := appt.ID
	ev := EventLog{
		EventType:     event,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event", event).Stringer("appointment_id", appt.ID).Msg("insert event log")
	}

	change := ChangeEvent{
		Event:         event,
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
		Status:        appt.Status,
		OccurredAt:    time.Now(),
	}
	if err := s.publisher.PublishAppointmentChange(ctx, change); err != nil {
		s.logger.Error().Err(err).Str("event", event).Stringer("appointment_id", appt.ID).Msg("publish change event")
	}
}
