package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActiveSlotConstraint is the partial unique index that enforces the
// one-active-appointment-per-slot invariant at the storage layer.
const ActiveSlotConstraint = "appointments_active_slot_uniq"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var phone *string

	err := row.Scan(
		&p.ID,
		&p.FullName,
		&phone,
		&p.Role,
		&p.EmailConfirmed,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	p.Phone = phone
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var departmentID *uuid.UUID
	var photoURL *string

	err := row.Scan(
		&d.ID,
		&d.ProfileID,
		&departmentID,
		&d.Specialty,
		&d.Bio,
		&d.ExperienceYears,
		&photoURL,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.DepartmentID = departmentID
	d.PhotoURL = photoURL
	return &d, nil
}

func scanDepartment(row pgx.Row) (*Department, error) {
	var dep Department

	err := row.Scan(
		&dep.ID,
		&dep.Name,
		&dep.Description,
		&dep.CreatedAt,
		&dep.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}

	return &dep, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var departmentID *uuid.UUID
	var patientNote, doctorNote *string
	var cancelledBy *Role

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&departmentID,
		&a.AppointmentDate,
		&a.AppointmentTime,
		&a.Status,
		&patientNote,
		&doctorNote,
		&cancelledBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.DepartmentID = departmentID
	a.PatientNote = patientNote
	a.DoctorNote = doctorNote
	a.CancelledBy = cancelledBy
	return &a, nil
}

const appointmentColumns = `
	id, patient_id, doctor_id, department_id,
	to_char(appointment_date, 'YYYY-MM-DD'),
	to_char(appointment_time, 'HH24:MI'),
	status, patient_note, doctor_note, cancelled_by, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetProfileByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, full_name, phone, role, email_confirmed, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, id)
	return scanProfile(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, profile_id, department_id, specialty, bio, experience_years, photo_url, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByProfileID(ctx context.Context, profileID uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, profile_id, department_id, specialty, bio, experience_years, photo_url, created_at, updated_at
		FROM doctors
		WHERE profile_id = $1
	`, profileID)
	return scanDoctor(row)
}

func (r *PgRepository) ListDoctors(ctx context.Context, departmentID *uuid.UUID) ([]DoctorDetail, error) {
	query := `
		SELECT d.id, d.profile_id, d.department_id, d.specialty, d.bio, d.experience_years,
		       d.photo_url, d.created_at, d.updated_at, p.full_name, dep.name
		FROM doctors d
		JOIN profiles p ON p.id = d.profile_id
		LEFT JOIN departments dep ON dep.id = d.department_id`
	args := []any{}
	if departmentID != nil {
		query += ` WHERE d.department_id = $1`
		args = append(args, *departmentID)
	}
	query += ` ORDER BY p.full_name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DoctorDetail
	for rows.Next() {
		var dd DoctorDetail
		var departmentID *uuid.UUID
		var photoURL, departmentName *string

		err := rows.Scan(
			&dd.ID,
			&dd.ProfileID,
			&departmentID,
			&dd.Specialty,
			&dd.Bio,
			&dd.ExperienceYears,
			&photoURL,
			&dd.CreatedAt,
			&dd.UpdatedAt,
			&dd.FullName,
			&departmentName,
		)
		if err != nil {
			return nil, err
		}

		dd.DepartmentID = departmentID
		dd.PhotoURL = photoURL
		dd.DepartmentName = departmentName
		result = append(result, dd)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM departments
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Department
	for rows.Next() {
		dep, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *dep)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateDepartment(ctx context.Context, name, description string) (*Department, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO departments (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, name, description, created_at, updated_at
	`, uuid.New(), name, description)
	return scanDepartment(row)
}

func (r *PgRepository) UpdateDepartment(ctx context.Context, id uuid.UUID, name, description string) (*Department, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE departments
		SET name = $2,
		    description = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, name, description, created_at, updated_at
	`, id, name, description)
	return scanDepartment(row)
}

func (r *PgRepository) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]Availability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, weekday,
		       to_char(start_time, 'HH24:MI'),
		       to_char(end_time, 'HH24:MI'),
		       created_at, updated_at
		FROM availability_windows
		WHERE doctor_id = $1
		ORDER BY weekday, start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Availability
	for rows.Next() {
		var a Availability
		err := rows.Scan(&a.ID, &a.DoctorID, &a.Weekday, &a.StartTime, &a.EndTime, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ReplaceAvailability(ctx context.Context, doctorID uuid.UUID, windows []Availability) ([]Availability, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM availability_windows WHERE doctor_id = $1`, doctorID); err != nil {
		return nil, err
	}

	for _, w := range windows {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_windows (id, doctor_id, weekday, start_time, end_time, created_at, updated_at)
			VALUES ($1, $2, $3, $4::time, $5::time, now(), now())
		`, uuid.New(), doctorID, w.Weekday, w.StartTime, w.EndTime)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return r.ListAvailability(ctx, doctorID)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, doctor_id, department_id, appointment_date, appointment_time,
			 status, patient_note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::date, $6::time, 'pending', $7, now(), now())
		RETURNING`+appointmentColumns+`
	`, uuid.New(), appt.PatientID, appt.DoctorID, appt.DepartmentID,
		appt.AppointmentDate, appt.AppointmentTime, appt.PatientNote)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == ActiveSlotConstraint {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error) {
	query := `
		SELECT a.id, a.patient_id, a.doctor_id, a.department_id,
		       to_char(a.appointment_date, 'YYYY-MM-DD'),
		       to_char(a.appointment_time, 'HH24:MI'),
		       a.status, a.patient_note, a.doctor_note, a.cancelled_by, a.created_at, a.updated_at,
		       pp.full_name, dp.full_name, dep.name
		FROM appointments a
		JOIN profiles pp ON pp.id = a.patient_id
		JOIN doctors d ON d.id = a.doctor_id
		JOIN profiles dp ON dp.id = d.profile_id
		LEFT JOIN departments dep ON dep.id = a.department_id
		WHERE 1=1`

	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.PatientID != nil {
		query += ` AND a.patient_id = ` + arg(*f.PatientID)
	}
	if f.DoctorID != nil {
		query += ` AND a.doctor_id = ` + arg(*f.DoctorID)
	}
	if f.Status != nil {
		query += ` AND a.status = ` + arg(*f.Status)
	}

	query += ` ORDER BY a.appointment_date ASC, a.appointment_time ASC`
	query += ` LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var ad AppointmentDetail
		var departmentID *uuid.UUID
		var patientNote, doctorNote, departmentName *string
		var cancelledBy *Role

		err := rows.Scan(
			&ad.ID,
			&ad.PatientID,
			&ad.DoctorID,
			&departmentID,
			&ad.AppointmentDate,
			&ad.AppointmentTime,
			&ad.Status,
			&patientNote,
			&doctorNote,
			&cancelledBy,
			&ad.CreatedAt,
			&ad.UpdatedAt,
			&ad.PatientName,
			&ad.DoctorName,
			&departmentName,
		)
		if err != nil {
			return nil, err
		}

		ad.DepartmentID = departmentID
		ad.PatientNote = patientNote
		ad.DoctorNote = doctorNote
		ad.CancelledBy = cancelledBy
		ad.DepartmentName = departmentName
		result = append(result, ad)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, change StatusChange) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    doctor_note = COALESCE($4, doctor_note),
		    cancelled_by = COALESCE($5, cancelled_by),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING`+appointmentColumns+`
	`, id, to, from, change.DoctorNote, change.CancelledBy)

	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
