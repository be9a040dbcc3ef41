package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateSlot(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		date string
		time string
		ok   bool
	}{
		{"future day", "2026-03-11", "09:00", true},
		{"same day later", "2026-03-10", "15:30", true},
		{"same day earlier", "2026-03-10", "08:00", false},
		{"past day", "2026-03-09", "09:00", false},
		{"bad date format", "10-03-2026", "09:00", false},
		{"bad time format", "2026-03-11", "9am", false},
		{"empty time", "2026-03-11", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSlot(tc.date, tc.time, now)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSlot)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
}
