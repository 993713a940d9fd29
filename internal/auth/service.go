package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatewise/gatewise/internal/directory"
	"github.com/gatewise/gatewise/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   directory.Repository
	tokens *TokenStore
}

// NewService constructs a new Service.
func NewService(repo directory.Repository, tokens *TokenStore) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Register creates a user-role account. Permission flags start all-false
// and can only change through an approved permission request.
func (s *Service) Register(ctx context.Context, email, name, password string) (*directory.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	return s.repo.Create(ctx, email, name, string(hash), shared.RoleUser)
}

// Login validates credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (*directory.User, string, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("auth: invalid credentials: %w", shared.ErrUnauthenticated)
	}
	if !user.IsActive {
		return nil, "", fmt.Errorf("auth: account disabled: %w", shared.ErrUnauthenticated)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("auth: invalid credentials: %w", shared.ErrUnauthenticated)
	}
	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// ResolveIdentity maps a bearer token to a full identity snapshot.
func (s *Service) ResolveIdentity(ctx context.Context, token string) (*shared.Identity, error) {
	userID, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		// A token whose account vanished is indistinguishable from an
		// invalid one as far as the caller is concerned.
		return nil, fmt.Errorf("auth: token holder missing: %w", shared.ErrUnauthenticated)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("auth: account disabled: %w", shared.ErrUnauthenticated)
	}
	return &shared.Identity{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: user.Permissions,
	}, nil
}
