package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/pkg/logger"
)

const (
	// maxFailedAttempts locks the account after this many bad passwords
	maxFailedAttempts = 5

	// lockDuration is how long a locked account stays locked
	lockDuration = 15 * time.Minute
)

// Service provides authentication operations.
type Service struct {
	users UserRepository
	jwt   *JWTService
}

// NewService creates an authentication service.
func NewService(users UserRepository, jwtService *JWTService) *Service {
	return &Service{users: users, jwt: jwtService}
}

// LoginResult carries the issued token.
type LoginResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        *User     `json:"user"`
}

// Login verifies credentials and issues an access token. Wrong passwords
// count toward a lockout; the caller cannot distinguish an unknown email
// from a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewUnauthorized("invalid credentials")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := user.CanLogin(); err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		user.RecordFailedLogin(maxFailedAttempts, lockDuration)
		if updErr := s.users.Update(ctx, user); updErr != nil {
			logger.Error(ctx, "record failed login", "user_id", user.ID, "error", updErr)
		}
		return nil, apperror.NewUnauthorized("invalid credentials")
	}

	user.RecordSuccessfulLogin()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	token, expiresAt, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	logger.Info(ctx, "user logged in", "user_id", user.ID)
	return &LoginResult{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, email, password, fullName string, roles []string) (*User, error) {
	if len(password) < 8 {
		return nil, apperror.NewValidation("password must be at least 8 characters").
			WithDetail("field", "password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := NewUser(email, string(hash))
	user.FullName = fullName
	if len(roles) > 0 {
		user.Roles = roles
	}

	if err := user.Validate(ctx); err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID id.ID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return apperror.NewUnauthorized("invalid credentials")
	}

	if len(next) < 8 {
		return apperror.NewValidation("password must be at least 8 characters").
			WithDetail("field", "password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user.PasswordHash = string(hash)
	user.UpdatedAt = time.Now().UTC()
	return s.users.Update(ctx, user)
}

// ValidateToken resolves a bearer token to an actor.
func (s *Service) ValidateToken(token string) (*appctx.ActorContext, error) {
	return s.jwt.ValidateToken(token)
}
