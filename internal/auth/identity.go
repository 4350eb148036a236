// Package auth defines the identity contracts of the service and their
// embedded implementation: HS256 tokens shaped like the hosted provider's,
// and locally managed accounts with bcrypt password hashes.
package auth

import (
	"context"
	"strings"

	"github.com/tbourn/crystarise-backend/internal/domain"
)

// Identity is a verified user as reported by the identity provider.
type Identity struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata"`
}

// Session is the result of a successful sign-in.
type Session struct {
	AccessToken string    `json:"access_token"`
	User        *Identity `json:"user"`
}

// Verifier turns a bearer token into an identity. Every failure is
// domain.KindUnauthorized, except provider outages which are
// domain.KindUnavailable.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Accounts manages credentials and profile metadata.
type Accounts interface {
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	UpdateProfile(ctx context.Context, a domain.Actor, name, avatarURL *string) (*Identity, error)
}

// MinPasswordLen matches the hosted provider's default.
const MinPasswordLen = 6

func (i *Identity) meta(key string) string {
	if i == nil || i.Metadata == nil {
		return ""
	}
	s, _ := i.Metadata[key].(string)
	return s
}

// Name returns the "name" metadata, or "".
func (i *Identity) Name() string { return i.meta("name") }

// AvatarURL returns the "avatar_url" metadata, or "".
func (i *Identity) AvatarURL() string { return i.meta("avatar_url") }

// DisplayName falls back from the name metadata to the local part of the
// email, then to "User".
func (i *Identity) DisplayName() string {
	if n := i.Name(); n != "" {
		return n
	}
	if i != nil && i.Email != "" {
		local, _, _ := strings.Cut(i.Email, "@")
		if local != "" {
			return local
		}
	}
	return "User"
}

func validateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Invalid("a valid email is required")
	}
	if len(password) < MinPasswordLen {
		return domain.Invalid("password should be at least 6 characters")
	}
	return nil
}
