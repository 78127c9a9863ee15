package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/escalaapp/escala/internal/models"
	"github.com/escalaapp/escala/pkg/crypto"
	apperrors "github.com/escalaapp/escala/pkg/errors"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrEmailTaken indicates an account already exists for the address.
	ErrEmailTaken = apperrors.New("EMAIL_TAKEN", "An account with this email already exists", http.StatusConflict)
)

// CreateUserInput describes the fields accepted when registering a user.
type CreateUserInput struct {
	Email       string
	Password    string
	DisplayName string
	PhotoURL    string
}

// UserService manages account registration and credential checks.
type UserService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, audit: audit}, nil
}

// Create provisions a new user with a hashed password. The email is
// canonicalised before storage so lookups stay case-insensitive.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := canonicalEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Email:       email,
		Password:    hashed,
		DisplayName: defaultIfEmpty(strings.TrimSpace(input.DisplayName), email),
		PhotoURL:    strings.TrimSpace(input.PhotoURL),
		IsActive:    true,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	recordAudit(ctx, s.audit, AuditEntry{
		UserID:   &user.ID,
		Username: user.DisplayName,
		Action:   "user.register",
		Resource: "users",
		Result:   "success",
		Metadata: map[string]any{"email": user.Email},
	})

	return user, nil
}

// Authenticate verifies the supplied credentials and returns the
// account. Missing accounts, disabled accounts and bad passwords all
// yield the same error so callers cannot probe for registered emails.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	email = canonicalEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	user, err := s.loadUser(ctx, "email = ?", email, apperrors.ErrInvalidCredentials)
	if err != nil {
		return nil, err
	}

	if !user.IsActive || !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return user, nil
}

// GetByID fetches a user by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}
	return s.loadUser(ensureContext(ctx), "id = ?", id, ErrUserNotFound)
}

// FindByEmail fetches a user by canonical email.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = canonicalEmail(email)
	if email == "" {
		return nil, ErrUserNotFound
	}
	return s.loadUser(ensureContext(ctx), "email = ?", email, ErrUserNotFound)
}

// TouchLastLogin records a successful sign-in timestamp.
func (s *UserService) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(userID) == "" {
		return ErrUserNotFound
	}

	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at).Error
}

// loadUser fetches a single row, translating gorm's not-found into the
// caller's chosen sentinel.
func (s *UserService) loadUser(ctx context.Context, query, arg string, missing error) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, missing
	case err != nil:
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}
