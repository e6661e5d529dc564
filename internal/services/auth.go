// Where: cli/internal/services/auth.go
// What: Account sessions and user profiles.
// Why: Authenticate against the account store and mirror users into the users collection.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/logging"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	defaultRole   = "customer"
	defaultStatus = "active"
)

type AuthService struct {
	Accounts store.AccountStore
	Docs     store.DocumentStore // optional; profiles are skipped without it
	Target   Target
	Logger   *zap.Logger
	Clock
}

// CurrentUser returns the signed-in account, or nil when nobody is signed
// in. Other lookup failures are returned as errors.
func (s *AuthService) CurrentUser(ctx context.Context) (*store.Account, error) {
	acc, err := s.Accounts.CurrentAccount(ctx)
	if err != nil {
		switch store.KindOf(err) {
		case store.KindPermission, store.KindNotFound:
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return &acc, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (store.Session, error) {
	session, err := s.Accounts.CreateEmailSession(ctx, email, password)
	if err != nil {
		return store.Session{}, fmt.Errorf("login failed: %w", err)
	}
	return session, nil
}

// Register creates the account, signs in, and writes a users profile
// document under the account id. A profile failure is logged, not returned.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*store.Account, error) {
	userID := s.newID()
	if _, err := s.Accounts.CreateAccount(ctx, userID, email, password, name); err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	if _, err := s.Login(ctx, email, password); err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	if err := s.createProfile(ctx, userID, email, name); err != nil {
		logging.OrNop(s.Logger).Warn("user profile creation failed", zap.String("user", userID), zap.Error(err))
	}
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	if user == nil {
		return nil, errors.New("registration failed: no session after login")
	}
	return user, nil
}

func (s *AuthService) createProfile(ctx context.Context, userID, email, name string) error {
	if s.Docs == nil {
		return store.Unsupported("documents")
	}
	now := stamp(s.now())
	_, err := s.Docs.CreateDocument(ctx, s.Target.DatabaseID, s.Target.Collections.Users, userID, map[string]any{
		"email":     email,
		"name":      name,
		"role":      defaultRole,
		"status":    defaultStatus,
		"createdAt": now,
		"updatedAt": now,
	})
	return err
}

// Logout removes the current session.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.Accounts.DeleteSession(ctx, "current"); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// UpdateProfile patches the user's profile document.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, data map[string]any) (store.Document, error) {
	if s.Docs == nil {
		return store.Document{}, fmt.Errorf("profile update failed: %w", store.Unsupported("documents"))
	}
	fields := copyFields(data)
	fields["updatedAt"] = stamp(s.now())
	doc, err := s.Docs.UpdateDocument(ctx, s.Target.DatabaseID, s.Target.Collections.Users, userID, fields)
	if err != nil {
		return store.Document{}, fmt.Errorf("profile update failed: %w", err)
	}
	return doc, nil
}
