// Package notify fans committed appointment mutations out over Redis
// Pub/Sub. Delivery is best effort and at-least-once from the consumer's
// point of view: a lost message never implies a lost state change, so
// subscribers re-read their rows on receipt instead of trusting the payload.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/scheduling"
)

// PatientChannel is the feed of changes to appointments where patient_id = id.
func PatientChannel(id uuid.UUID) string {
	return fmt.Sprintf("appointments.patient.%s", id)
}

// DoctorChannel is the feed of changes to appointments where doctor_id = id.
func DoctorChannel(id uuid.UUID) string {
	return fmt.Sprintf("appointments.doctor.%s", id)
}

type RedisPublisher struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisPublisher(client *redis.Client, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// PublishAppointmentChange emits one event on the patient's and the doctor's
// channel. Called only after the underlying transition has committed.
func (p *RedisPublisher) PublishAppointmentChange(ctx context.Context, ev scheduling.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	for _, channel := range []string{PatientChannel(ev.PatientID), DoctorChannel(ev.DoctorID)} {
		if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
			return fmt.Errorf("publish to %s: %w", channel, err)
		}
	}

	p.logger.Debug().
		Str("event", ev.Event).
		Stringer("appointment_id", ev.AppointmentID).
		Msg("change event published")

	return nil
}

// Subscribe listens on one channel and decodes events until ctx is done.
// Malformed payloads are logged and skipped; consumers reconcile by
// re-reading anyway.
func Subscribe(ctx context.Context, client *redis.Client, channel string, logger zerolog.Logger) <-chan scheduling.ChangeEvent {
	out := make(chan scheduling.ChangeEvent)
	sub := client.Subscribe(ctx, channel)

	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := decodeChangeEvent(msg.Payload)
				if err != nil {
					logger.Warn().Err(err).Str("channel", channel).Msg("drop malformed change event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func decodeChangeEvent(payload string) (scheduling.ChangeEvent, error) {
	var ev scheduling.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return scheduling.ChangeEvent{}, err
	}
	return ev, nil
}
