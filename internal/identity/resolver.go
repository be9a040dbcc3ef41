// Package identity maps authenticated caller tokens to a profile, a role and,
// for doctors, the linked doctor record. Token issuance and credential
// management live in the external identity subsystem; this package only
// verifies what that subsystem minted.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medibook/medibook/internal/scheduling"
)

var (
	ErrUnauthenticated = errors.New("missing or invalid caller token")

	// ErrProfileIncomplete means a doctor-role identity has no linked doctor
	// record yet (signup/provisioning race).
	ErrProfileIncomplete = errors.New("doctor profile has no linked doctor record")
)

// ProfileSource is the subset of storage the resolver needs.
type ProfileSource interface {
	GetProfileByID(ctx context.Context, id uuid.UUID) (*scheduling.Profile, error)
	GetDoctorByProfileID(ctx context.Context, profileID uuid.UUID) (*scheduling.Doctor, error)
}

type Resolver struct {
	profiles ProfileSource
	secret   []byte
}

func NewResolver(profiles ProfileSource, secret []byte) *Resolver {
	return &Resolver{profiles: profiles, secret: secret}
}

// Resolve verifies the bearer token and loads the caller identity. Pure
// lookup, no side effects.
func (r *Resolver) Resolve(ctx context.Context, token string) (*scheduling.Caller, error) {
	profileID, err := r.verify(token)
	if err != nil {
		return nil, err
	}

	profile, err := r.profiles.GetProfileByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, scheduling.ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: no profile for token subject", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	caller := &scheduling.Caller{
		ProfileID:      profile.ID,
		Role:           profile.Role,
		EmailConfirmed: profile.EmailConfirmed,
	}

	if profile.Role == scheduling.RoleDoctor {
		doctor, err := r.profiles.GetDoctorByProfileID(ctx, profile.ID)
		if err != nil {
			if errors.Is(err, scheduling.ErrDoctorNotFound) {
				return nil, ErrProfileIncomplete
			}
			return nil, fmt.Errorf("load doctor link: %w", err)
		}
		id := doctor.ID
		caller.DoctorID = &id
	}

	return caller, nil
}

func (r *Resolver) verify(token string) (uuid.UUID, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	profileID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: token subject is not a profile id", ErrUnauthenticated)
	}

	return profileID, nil
}
