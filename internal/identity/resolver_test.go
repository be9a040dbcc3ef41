package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/medibook/internal/identity"
	"github.com/medibook/medibook/internal/scheduling"
)

var secret = []byte("test-secret-test-secret-test-1234")

type fakeProfiles struct {
	profiles map[uuid.UUID]scheduling.Profile
	doctors  map[uuid.UUID]scheduling.Doctor // keyed by profile id
}

func (f *fakeProfiles) GetProfileByID(_ context.Context, id uuid.UUID) (*scheduling.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, scheduling.ErrProfileNotFound
	}
	return &p, nil
}

func (f *fakeProfiles) GetDoctorByProfileID(_ context.Context, profileID uuid.UUID) (*scheduling.Doctor, error) {
	d, ok := f.doctors[profileID]
	if !ok {
		return nil, scheduling.ErrDoctorNotFound
	}
	return &d, nil
}

func mint(t *testing.T, key []byte, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestResolvePatient(t *testing.T) {
	profileID := uuid.New()
	src := &fakeProfiles{
		profiles: map[uuid.UUID]scheduling.Profile{
			profileID: {ID: profileID, Role: scheduling.RolePatient, EmailConfirmed: true},
		},
	}
	r := identity.NewResolver(src, secret)

	caller, err := r.Resolve(context.Background(), mint(t, secret, profileID.String(), time.Hour))
	require.NoError(t, err)
	assert.Equal(t, profileID, caller.ProfileID)
	assert.Equal(t, scheduling.RolePatient, caller.Role)
	assert.True(t, caller.EmailConfirmed)
	assert.Nil(t, caller.DoctorID)
}

func TestResolveDoctorLinksDoctorRecord(t *testing.T) {
	profileID := uuid.New()
	doctorID := uuid.New()
	src := &fakeProfiles{
		profiles: map[uuid.UUID]scheduling.Profile{
			profileID: {ID: profileID, Role: scheduling.RoleDoctor, EmailConfirmed: true},
		},
		doctors: map[uuid.UUID]scheduling.Doctor{
			profileID: {ID: doctorID, ProfileID: profileID},
		},
	}
	r := identity.NewResolver(src, secret)

	caller, err := r.Resolve(context.Background(), mint(t, secret, profileID.String(), time.Hour))
	require.NoError(t, err)
	assert.Equal(t, scheduling.RoleDoctor, caller.Role)
	require.NotNil(t, caller.DoctorID)
	assert.Equal(t, doctorID, *caller.DoctorID)
}

func TestResolveDoctorWithoutRecord(t *testing.T) {
	profileID := uuid.New()
	src := &fakeProfiles{
		profiles: map[uuid.UUID]scheduling.Profile{
			profileID: {ID: profileID, Role: scheduling.RoleDoctor, EmailConfirmed: true},
		},
	}
	r := identity.NewResolver(src, secret)

	_, err := r.Resolve(context.Background(), mint(t, secret, profileID.String(), time.Hour))
	assert.ErrorIs(t, err, identity.ErrProfileIncomplete)
}

func TestResolveRejectsBadTokens(t *testing.T) {
	profileID := uuid.New()
	src := &fakeProfiles{
		profiles: map[uuid.UUID]scheduling.Profile{
			profileID: {ID: profileID, Role: scheduling.RolePatient, EmailConfirmed: true},
		},
	}
	r := identity.NewResolver(src, secret)

	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"wrong key", mint(t, []byte("some-other-key-entirely-000000000"), profileID.String(), time.Hour)},
		{"expired", mint(t, secret, profileID.String(), -time.Minute)},
		{"non-uuid subject", mint(t, secret, "alice", time.Hour)},
		{"empty subject", mint(t, secret, "", time.Hour)},
		{"unknown profile", mint(t, secret, uuid.NewString(), time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tc.token)
			assert.ErrorIs(t, err, identity.ErrUnauthenticated)
		})
	}
}

func TestResolveRejectsUnsignedToken(t *testing.T) {
	profileID := uuid.New()
	src := &fakeProfiles{
		profiles: map[uuid.UUID]scheduling.Profile{
			profileID: {ID: profileID, Role: scheduling.RolePatient, EmailConfirmed: true},
		},
	}
	r := identity.NewResolver(src, secret)

	claims := jwt.RegisteredClaims{Subject: profileID.String()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, identity.ErrUnauthenticated)
}
