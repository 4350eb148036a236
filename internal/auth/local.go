package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/crystarise-backend/internal/domain"
	"github.com/tbourn/crystarise-backend/internal/repo"
)

// LocalAccounts keeps accounts in the embedded database and issues tokens
// with a JWTManager. It implements both Verifier and Accounts.
type LocalAccounts struct {
	DB     *gorm.DB
	Tokens *JWTManager
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

// NewLocalAccounts wires a LocalAccounts.
func NewLocalAccounts(db *gorm.DB, tokens *JWTManager) *LocalAccounts {
	return &LocalAccounts{DB: db, Tokens: tokens}
}

// SignUp registers a new account.
func (l *LocalAccounts) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	cost := l.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, domain.Invalid(fmt.Sprintf("password rejected: %v", err))
	}
	u, err := repo.CreateUser(ctx, l.DB, email, string(hash))
	if err != nil {
		if _, dup := repo.GetUserByEmail(ctx, l.DB, email); dup == nil {
			return nil, domain.Conflict("user already registered")
		}
		return nil, domain.Unavailable("sign up failed", err)
	}
	return identityOf(u), nil
}

// SignIn checks the password and issues an access token.
func (l *LocalAccounts) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := repo.GetUserByEmail(ctx, l.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.Invalid("invalid login credentials")
		}
		return nil, domain.Unavailable("sign in failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, domain.Invalid("invalid login credentials")
	}
	id := identityOf(u)
	tok, err := l.Tokens.Generate(id)
	if err != nil {
		return nil, domain.Unavailable("sign in failed", err)
	}
	return &Session{AccessToken: tok, User: id}, nil
}

// Verify validates the token and reloads the account so metadata is current
// and deleted accounts are rejected.
func (l *LocalAccounts) Verify(ctx context.Context, token string) (*Identity, error) {
	c, err := l.Tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	u, err := repo.GetUser(ctx, l.DB, c.Subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.Unauthorized("user no longer exists")
		}
		return nil, domain.Unavailable("verify token", err)
	}
	return identityOf(u), nil
}

// UpdateProfile updates name and avatar metadata of the acting user.
func (l *LocalAccounts) UpdateProfile(ctx context.Context, a domain.Actor, name, avatarURL *string) (*Identity, error) {
	u, err := repo.UpdateUserProfile(ctx, l.DB, a.UserID, name, avatarURL)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.Unauthorized("user no longer exists")
		}
		return nil, domain.Unavailable("update profile", err)
	}
	return identityOf(u), nil
}

func identityOf(u *domain.User) *Identity {
	meta := map[string]any{}
	if u.DisplayName != "" {
		meta["name"] = u.DisplayName
	}
	if u.AvatarURL != "" {
		meta["avatar_url"] = u.AvatarURL
	}
	return &Identity{ID: u.ID, Email: u.Email, Metadata: meta}
}
