package supabase

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tbourn/crystarise-backend/internal/auth"
	"github.com/tbourn/crystarise-backend/internal/domain"
)

// Auth implements auth.Verifier and auth.Accounts on GoTrue.
type Auth struct {
	c *Client
	// Offline, when set, verifies tokens locally with the project's JWT
	// secret instead of calling GET /auth/v1/user.
	Offline *auth.JWTManager
}

// NewAuth returns an Auth over c. offline may be nil.
func NewAuth(c *Client, offline *auth.JWTManager) *Auth {
	return &Auth{c: c, Offline: offline}
}

type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u *gotrueUser) identity() *auth.Identity {
	if u == nil || u.ID == "" {
		return nil
	}
	return &auth.Identity{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata}
}

// Verify resolves a bearer token to the user it belongs to.
func (a *Auth) Verify(ctx context.Context, token string) (*auth.Identity, error) {
	if a.Offline != nil {
		return a.Offline.Verify(ctx, token)
	}
	res, err := a.c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", token: token})
	if err != nil {
		return nil, err
	}
	if res.status == http.StatusUnauthorized || res.status == http.StatusForbidden || res.status == http.StatusNotFound {
		return nil, domain.Unauthorized("invalid authentication credentials")
	}
	var u gotrueUser
	if err := decode(res, &u); err != nil {
		if domain.KindOf(err) == domain.KindUnavailable {
			return nil, err
		}
		return nil, domain.Wrap(domain.KindUnauthorized, "invalid authentication credentials", err)
	}
	id := u.identity()
	if id == nil {
		return nil, domain.Unauthorized("unauthenticated")
	}
	return id, nil
}

// SignUp registers an account. Depending on project settings GoTrue answers
// with the user itself or with a session wrapping it.
func (a *Auth) SignUp(ctx context.Context, email, password string) (*auth.Identity, error) {
	body := map[string]any{"email": email, "password": password}
	res, err := a.c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/signup", body: body})
	if err != nil {
		return nil, err
	}
	var out struct {
		gotrueUser
		User *gotrueUser `json:"user"`
	}
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	if id := out.User.identity(); id != nil {
		return id, nil
	}
	if id := out.gotrueUser.identity(); id != nil {
		return id, nil
	}
	return nil, domain.Unavailable("sign up returned no user", nil)
}

// SignIn exchanges email and password for an access token.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	body := map[string]any{"email": email, "password": password}
	q := url.Values{"grant_type": {"password"}}
	res, err := a.c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/token", query: q, body: body})
	if err != nil {
		return nil, err
	}
	var out struct {
		AccessToken string      `json:"access_token"`
		User        *gotrueUser `json:"user"`
	}
	if err := decode(res, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, domain.Unavailable("sign in returned no session", nil)
	}
	return &auth.Session{AccessToken: out.AccessToken, User: out.User.identity()}, nil
}

// UpdateProfile writes name and avatar into the actor's user metadata.
func (a *Auth) UpdateProfile(ctx context.Context, act domain.Actor, name, avatarURL *string) (*auth.Identity, error) {
	data := map[string]any{}
	if name != nil {
		data["name"] = *name
	}
	if avatarURL != nil {
		data["avatar_url"] = *avatarURL
	}
	res, err := a.c.do(ctx, request{method: http.MethodPut, path: "/auth/v1/user", body: map[string]any{"data": data}, token: act.Token})
	if err != nil {
		return nil, err
	}
	var u gotrueUser
	if err := decode(res, &u); err != nil {
		return nil, err
	}
	if id := u.identity(); id != nil {
		return id, nil
	}
	return nil, domain.Unavailable("update returned no user", nil)
}
