package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/medibook/internal/scheduling"
)

func TestChannelNames(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	assert.Equal(t, "appointments.patient.6ba7b810-9dad-11d1-80b4-00c04fd430c8", PatientChannel(id))
	assert.Equal(t, "appointments.doctor.6ba7b810-9dad-11d1-80b4-00c04fd430c8", DoctorChannel(id))
	assert.NotEqual(t, PatientChannel(id), DoctorChannel(id))
}

func TestDecodeChangeEvent(t *testing.T) {
	ev := scheduling.ChangeEvent{
		Event:         "APPOINTMENT_CONFIRMED",
		AppointmentID: uuid.New(),
		DoctorID:      uuid.New(),
		PatientID:     uuid.New(),
		Status:        scheduling.StatusConfirmed,
		OccurredAt:    time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	got, err := decodeChangeEvent(string(payload))
	require.NoError(t, err)
	assert.Equal(t, ev, got)

	t.Run("malformed payloads are rejected", func(t *testing.T) {
		for _, raw := range []string{"", "{not json", `"just a string"`} {
			_, err := decodeChangeEvent(raw)
			assert.Error(t, err, "payload %q", raw)
		}
	})
}

func TestSubscribeStopsOnContextDone(t *testing.T) {
	// No Redis behind this client; the subscriber loop must still exit
	// promptly on cancellation.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := Subscribe(ctx, client, PatientChannel(uuid.New()), zerolog.Nop())
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok, "event channel closes when the context ends")
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop after cancellation")
	}
}
