package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/clock"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util/errorutil"
)

// IdentityProvider is a federated sign-in backend such as GitHub.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (domain.ExternalIdentity, error)
}

// AuthResult is returned by every successful sign-in.
type AuthResult struct {
	User  *domain.User
	Token domain.Token
}

// AuthService coordinates registration, login and password reset flows.
type AuthService struct {
	users      repository.UserRepository
	resets     repository.PasswordResetRepository
	identities *IdentityResolver
	github     IdentityProvider
	tokenMgr   *auth.TokenManager
	clock      clock.Clock
	logger     *zap.Logger
	bcryptCost int
	resetTTL   time.Duration
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	PasswordResetRepo repository.PasswordResetRepository
	GitHub            IdentityProvider
	Clock             clock.Clock
	Logger            *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		resets:     deps.PasswordResetRepo,
		identities: NewIdentityResolver(deps.UserRepo, clk, cfg.AdminEmails),
		github:     deps.GitHub,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL()),
		clock:      clk,
		logger:     logger,
		bcryptCost: cfg.BcryptCost,
		resetTTL:   cfg.PasswordResetTTL(),
	}
}

// Register creates a password account and signs it in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = repository.NormalizeEmail(email)
	if name == "" {
		return nil, apperrors.NewFieldError("name", "name is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.NewFieldError("email", "a valid email is required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	now := s.clock.Now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		Role:         s.identities.defaultRole(email),
		PasswordHash: hash,
		Provider:     domain.ProviderPassword,
		CreatedAt:    now,
		LastLoginAt:  now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.issue(user)
}

// Login authenticates a password account.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if user.PasswordHash == "" {
		return nil, apperrors.NewUnauthorized("account uses federated sign-in")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	user, err = s.identities.touch(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// GitHubAuthURL returns the consent URL for the GitHub flow.
func (s *AuthService) GitHubAuthURL(state string) (string, error) {
	if s.github == nil {
		return "", apperrors.NewUnavailable("github sign-in is not configured")
	}
	return s.github.AuthURL(state), nil
}

// LoginWithGitHub completes the GitHub flow and signs the account in.
func (s *AuthService) LoginWithGitHub(ctx context.Context, code string) (*AuthResult, error) {
	if s.github == nil {
		return nil, apperrors.NewUnavailable("github sign-in is not configured")
	}
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.NewFieldError("code", "authorization code is required")
	}
	identity, err := s.github.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("github exchange failed", zap.Error(err))
		return nil, apperrors.NewUnauthorized("github sign-in failed")
	}
	user, err := s.identities.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// RequestPasswordReset stores a one-time token for the account behind email.
// Unknown emails yield a nil token and no error so callers cannot discover
// accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (*domain.PasswordResetToken, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}

	token := &domain.PasswordResetToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: s.clock.Now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("password reset requested", zap.String("user_id", user.ID))
	return token, nil
}

// ConfirmPasswordReset consumes the token and sets a new password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.NewFieldError("token", "reset token is required")
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}

	reset, err := s.resets.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.NewFieldError("token", "reset token is invalid or expired")
		}
		return apperrors.MapError(err)
	}
	user, err := s.users.GetByID(ctx, reset.UserID)
	if err != nil {
		return apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// Identities exposes the resolver for administrative tooling.
func (s *AuthService) Identities() *IdentityResolver {
	return s.identities
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
