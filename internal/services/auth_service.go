package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/justsurfingit/adaudit/internal/auth"
	"github.com/justsurfingit/adaudit/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	RoleAdmin    = "admin"
	RoleReviewer = "reviewer"
	RoleViewer   = "viewer"

	minPasswordLength = 8
)

// GoogleExchanger is implemented by auth.GoogleOAuth.
type GoogleExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleIdentity, error)
}

type AuthService struct {
	DB         *gorm.DB
	Log        *zap.Logger
	SessionTTL time.Duration
	Now        func() time.Time

	// Google is nil when Google sign-in is disabled.
	Google GoogleExchanger
}

func NewAuthService(db *gorm.DB, log *zap.Logger, ttl time.Duration, google GoogleExchanger) *AuthService {
	return &AuthService{DB: db, Log: log, SessionTTL: ttl, Now: time.Now, Google: google}
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleReviewer || role == RoleViewer
}

// CreateUser adds a dashboard user. An empty password creates a Google-only account.
func (s *AuthService) CreateUser(email, name, password, role string) (*models.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email %q", ErrValidation, email)
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	user := &models.User{Email: strings.ToLower(addr.Address), Name: name, Role: role}
	if password != "" {
		if len(password) < minPasswordLength {
			return nil, fmt.Errorf("%w: password must have at least %d characters", ErrValidation, minPasswordLength)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	var count int64
	if err := s.DB.Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("checking email: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: user %s already exists", ErrConflict, user.Email)
	}
	if err := s.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// Login checks a password and opens a session.
func (s *AuthService) Login(email, password string) (string, *models.User, error) {
	var user models.User
	err := s.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrUnauthorized
		}
		return "", nil, fmt.Errorf("loading user: %w", err)
	}
	if user.PasswordHash == "" {
		return "", nil, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrUnauthorized
	}

	token, err := s.openSession(&user)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// LoginWithGoogle opens a session for an existing user identified by their Google account.
func (s *AuthService) LoginWithGoogle(ctx context.Context, code string) (string, *models.User, error) {
	if s.Google == nil {
		return "", nil, fmt.Errorf("%w: google sign-in is disabled", ErrValidation)
	}
	identity, err := s.Google.Exchange(ctx, code)
	if err != nil {
		s.Log.Warn("google sign-in rejected", zap.Error(err))
		return "", nil, ErrUnauthorized
	}

	var user models.User
	if err := s.DB.Where("email = ?", identity.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.Log.Warn("google sign-in for unknown user", zap.String("email", identity.Email))
			return "", nil, ErrUnauthorized
		}
		return "", nil, fmt.Errorf("loading user: %w", err)
	}
	if user.Name == "" && identity.Name != "" {
		s.DB.Model(&user).Update("name", identity.Name)
	}

	token, err := s.openSession(&user)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// Authenticate resolves a bearer token to its user.
func (s *AuthService) Authenticate(token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	var session models.Session
	err := s.DB.Preload("User").Where("token_hash = ?", auth.HashToken(token)).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if !s.Now().Before(session.ExpiresAt) {
		s.DB.Delete(&session)
		return nil, ErrUnauthorized
	}
	if session.User.ID == 0 {
		// user was deleted
		return nil, ErrUnauthorized
	}
	return &session.User, nil
}

func (s *AuthService) Logout(token string) error {
	return s.DB.Where("token_hash = ?", auth.HashToken(token)).Delete(&models.Session{}).Error
}

// PurgeExpiredSessions removes sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions() (int64, error) {
	res := s.DB.Where("expires_at <= ?", s.Now()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

func (s *AuthService) openSession(user *models.User) (string, error) {
	token := auth.NewToken()
	session := models.Session{
		TokenHash: auth.HashToken(token),
		UserID:    user.ID,
		ExpiresAt: s.Now().Add(s.SessionTTL),
	}
	if err := s.DB.Create(&session).Error; err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	s.Log.Info("session opened", zap.String("email", user.Email))
	return token, nil
}
