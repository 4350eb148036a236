// Package services – AuthService
//
// This file implements the AuthService, a thin layer over the identity
// provider for sign-up and sign-in. Emails are trimmed and lower-cased
// before they reach the provider.
package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/tbourn/crystarise-backend/internal/auth"
)

// AuthService registers and signs in users.
type AuthService struct {
	Accounts auth.Accounts
}

// NewAuthService constructs an AuthService.
func NewAuthService(accounts auth.Accounts) *AuthService {
	return &AuthService{Accounts: accounts}
}

// SignUp registers email/password. The provider may require the address to
// be confirmed before SignIn succeeds.
func (s *AuthService) SignUp(ctx context.Context, email, password string) (*auth.Identity, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "SignUp")
	defer span.End()

	id, err := s.Accounts.SignUp(ctx, normalizeEmail(email), password)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("user_id", id.ID).Msg("user signed up")
	return id, nil
}

// SignIn exchanges email/password for an access token.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "SignIn")
	defer span.End()

	return s.Accounts.SignIn(ctx, normalizeEmail(email), password)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
