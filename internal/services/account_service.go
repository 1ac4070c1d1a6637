package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gridwatch/healthindexer/internal/auth"
	"github.com/gridwatch/healthindexer/internal/models"
	"github.com/gridwatch/healthindexer/pkg/crypto"
	apperrors "github.com/gridwatch/healthindexer/pkg/errors"
	"github.com/gridwatch/healthindexer/pkg/mail"
	"github.com/gridwatch/healthindexer/pkg/metrics"
)

const (
	// DefaultResetTokenTTL bounds how long a password reset link stays valid.
	DefaultResetTokenTTL = time.Hour
	// DefaultVerificationTokenTTL bounds how long an email verification link stays valid.
	DefaultVerificationTokenTTL = 24 * time.Hour
)

// SignupInput carries the fields required to register an account.
type SignupInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// AccountService implements registration, login and the action-token flows
// (email verification and password reset).
type AccountService struct {
	db        *gorm.DB
	jwt       *auth.JWTService
	mailer    mail.Mailer
	logger    *zap.Logger
	baseURL   string
	resetTTL  time.Duration
	verifyTTL time.Duration
	now       func() time.Time
}

// AccountOption customises an AccountService.
type AccountOption func(*AccountService)

// WithAccountClock overrides the time source, used by tests.
func WithAccountClock(now func() time.Time) AccountOption {
	return func(s *AccountService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithResetTokenTTL overrides the password reset token lifetime.
func WithResetTokenTTL(ttl time.Duration) AccountOption {
	return func(s *AccountService) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithVerificationTokenTTL overrides the email verification token lifetime.
func WithVerificationTokenTTL(ttl time.Duration) AccountOption {
	return func(s *AccountService) {
		if ttl > 0 {
			s.verifyTTL = ttl
		}
	}
}

// NewAccountService wires an AccountService. baseURL is the public address of
// the frontend and is embedded in the emailed links.
func NewAccountService(db *gorm.DB, jwtService *auth.JWTService, mailer mail.Mailer, baseURL string, logger *zap.Logger, opts ...AccountOption) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}

	svc := &AccountService{
		db:        db,
		jwt:       jwtService,
		mailer:    mailer,
		logger:    logger,
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		resetTTL:  DefaultResetTokenTTL,
		verifyTTL: DefaultVerificationTokenTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Signup registers a new account in the unverified state and dispatches the
// verification email.
func (s *AccountService) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	email := normalizeEmail(input.Email)

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		metrics.Signups.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(err, "Failed to create account")
	}

	token, err := crypto.GenerateActionToken()
	if err != nil {
		metrics.Signups.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(err, "Failed to create account")
	}
	expiry := s.now().Add(s.verifyTTL)

	user := &models.User{
		FirstName:               strings.TrimSpace(input.FirstName),
		LastName:                strings.TrimSpace(input.LastName),
		Email:                   email,
		Password:                hash,
		Role:                    models.RoleUser,
		EmailVerified:           false,
		VerificationToken:       &token,
		VerificationTokenExpiry: &expiry,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			metrics.Signups.WithLabelValues("duplicate").Inc()
			return nil, apperrors.ErrDuplicateEmail
		}
		metrics.Signups.WithLabelValues("error").Inc()
		return nil, apperrors.Wrap(err, "Failed to create account")
	}

	if err := s.sendVerificationEmail(ctx, user, token); err != nil {
		// The account exists; the user can request a fresh link later.
		s.logger.Warn("verification email dispatch failed",
			zap.String("user_id", user.ID),
			zap.Error(err))
	}

	metrics.Signups.WithLabelValues("success").Inc()
	s.logger.Info("account created", zap.String("user_id", user.ID))
	return user, nil
}

// Login authenticates the credentials and returns a signed session token.
// Credential failures are reported before account-state failures so that the
// error never confirms a password for a blocked account.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = normalizeEmail(email)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return "", nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, apperrors.Wrap(err, "Login failed")
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return "", nil, apperrors.ErrInvalidCredentials
	}

	if user.Role == models.RoleSuspended {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return "", nil, apperrors.ErrAccountSuspended
	}

	if !user.EmailVerified {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return "", nil, apperrors.ErrEmailNotVerified
	}

	token, err := s.jwt.IssueSession(&user)
	if err != nil {
		return "", nil, apperrors.Wrap(err, "Login failed")
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	s.logger.Info("user logged in", zap.String("user_id", user.ID))
	return token, &user, nil
}

// VerifyEmail consumes a verification token. The conditional update makes
// redemption first-wins: a second attempt with the same token matches zero
// rows and fails.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.ErrInvalidActionToken
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("verification_token = ? AND verification_token_expiry > ?", token, s.now()).
		Updates(map[string]interface{}{
			"email_verified":            true,
			"verification_token":        nil,
			"verification_token_expiry": nil,
		})
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "Email verification failed")
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrInvalidActionToken
	}

	return nil
}

// ForgotPassword issues a reset token and emails the reset link. A missing
// account is not an error: callers respond identically either way so the
// endpoint cannot be used to probe which addresses are registered.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(err, "Failed to process request")
	}

	token, err := crypto.GenerateActionToken()
	if err != nil {
		return apperrors.Wrap(err, "Failed to process request")
	}
	expiry := s.now().Add(s.resetTTL)

	err = s.db.WithContext(ctx).
		Model(&user).
		Updates(map[string]interface{}{
			"reset_token":        token,
			"reset_token_expiry": expiry,
		}).Error
	if err != nil {
		return apperrors.Wrap(err, "Failed to process request")
	}

	if err := s.sendPasswordResetEmail(ctx, &user, token); err != nil {
		return apperrors.Wrap(err, "Failed to send reset email")
	}

	s.logger.Info("password reset requested", zap.String("user_id", user.ID))
	return nil
}

// ResetPassword consumes a reset token and stores the new password hash.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return apperrors.ErrInvalidActionToken
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return apperrors.Wrap(err, "Password reset failed")
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("reset_token = ? AND reset_token_expiry > ?", token, s.now()).
		Updates(map[string]interface{}{
			"password":           hash,
			"reset_token":        nil,
			"reset_token_expiry": nil,
		})
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "Password reset failed")
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrInvalidActionToken
	}

	return nil
}

// UserByID loads a user for identity lookups.
func (s *AccountService) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load user")
	}
	return &user, nil
}

func (s *AccountService) sendVerificationEmail(ctx context.Context, user *models.User, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)
	body := fmt.Sprintf(
		"Hello %s,\n\nWelcome! Please verify your email address by visiting the link below:\n\n%s\n\nThe link expires in %s. If you did not create this account, you can ignore this message.\n",
		user.FullName(), link, formatTTL(s.verifyTTL))

	return s.mailer.Send(ctx, mail.Message{
		To:      []string{user.Email},
		Subject: "Verify your email address",
		Body:    body,
	})
}

func (s *AccountService) sendPasswordResetEmail(ctx context.Context, user *models.User, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	body := fmt.Sprintf(
		"Hello %s,\n\nA password reset was requested for your account. Visit the link below to choose a new password:\n\n%s\n\nThe link expires in %s. If you did not request this, you can ignore this message.\n",
		user.FullName(), link, formatTTL(s.resetTTL))

	return s.mailer.Send(ctx, mail.Message{
		To:      []string{user.Email},
		Subject: "Reset your password",
		Body:    body,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func formatTTL(ttl time.Duration) string {
	if ttl >= 24*time.Hour && ttl%(24*time.Hour) == 0 {
		days := int(ttl / (24 * time.Hour))
		if days == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", days)
	}
	if ttl == time.Hour {
		return "1 hour"
	}
	return ttl.String()
}
