package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent and applied on startup. The partial unique index
// appointments_active_slot_uniq is the load-bearing piece: it makes the
// check-and-insert for a booking atomic at the storage layer, so two
// concurrent creations of the same (doctor, date, time) slot can never both
// succeed no matter how the application code interleaves.
const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id               UUID PRIMARY KEY,
	full_name        TEXT NOT NULL,
	phone            TEXT,
	role             TEXT NOT NULL CHECK (role IN ('patient', 'doctor', 'admin')),
	email_confirmed  BOOLEAN NOT NULL DEFAULT false,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS departments (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS doctors (
	id               UUID PRIMARY KEY,
	profile_id       UUID NOT NULL UNIQUE REFERENCES profiles(id),
	department_id    UUID REFERENCES departments(id),
	specialty        TEXT NOT NULL DEFAULT '',
	bio              TEXT NOT NULL DEFAULT '',
	experience_years INT NOT NULL DEFAULT 0,
	photo_url        TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS availability_windows (
	id         UUID PRIMARY KEY,
	doctor_id  UUID NOT NULL REFERENCES doctors(id),
	weekday    INT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	start_time TIME NOT NULL,
	end_time   TIME NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (start_time < end_time)
);

CREATE TABLE IF NOT EXISTS appointments (
	id               UUID PRIMARY KEY,
	patient_id       UUID NOT NULL REFERENCES profiles(id),
	doctor_id        UUID NOT NULL REFERENCES doctors(id),
	department_id    UUID REFERENCES departments(id),
	appointment_date DATE NOT NULL,
	appointment_time TIME NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'rejected', 'cancelled', 'completed')),
	patient_note     TEXT,
	doctor_note      TEXT,
	cancelled_by     TEXT CHECK (cancelled_by IN ('patient', 'doctor', 'admin')),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot_uniq
	ON appointments (doctor_id, appointment_date, appointment_time)
	WHERE status IN ('pending', 'confirmed');

CREATE INDEX IF NOT EXISTS appointments_patient_idx ON appointments (patient_id);
CREATE INDEX IF NOT EXISTS appointments_doctor_idx ON appointments (doctor_id);

CREATE TABLE IF NOT EXISTS event_logs (
	id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	event_type     TEXT NOT NULL,
	appointment_id UUID,
	payload        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
