package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gridwatch/healthindexer/internal/auth"
	"github.com/gridwatch/healthindexer/internal/database/testutil"
	"github.com/gridwatch/healthindexer/internal/models"
	"github.com/gridwatch/healthindexer/pkg/crypto"
	apperrors "github.com/gridwatch/healthindexer/pkg/errors"
	"github.com/gridwatch/healthindexer/pkg/mail"
)

type captureMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

type accountEnv struct {
	db     *gorm.DB
	svc    *AccountService
	jwt    *auth.JWTService
	mailer *captureMailer
}

func newAccountEnv(t *testing.T, opts ...AccountOption) *accountEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "healthindexer-test"})
	require.NoError(t, err)

	mailer := &captureMailer{}
	svc := NewAccountService(db, jwtService, mailer, "https://app.example.com", nil, opts...)

	return &accountEnv{db: db, svc: svc, jwt: jwtService, mailer: mailer}
}

func (e *accountEnv) seedUser(t *testing.T, email, password string, role models.Role, verified bool) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		FirstName:     "Test",
		LastName:      "User",
		Email:         email,
		Password:      hash,
		Role:          role,
		EmailVerified: verified,
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func TestSignupCreatesUnverifiedAccount(t *testing.T) {
	env := newAccountEnv(t)

	user, err := env.svc.Signup(context.Background(), SignupInput{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "Grace@Example.com",
		Password:  "s3cret-password",
	})
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", user.Email)
	require.Equal(t, models.RoleUser, user.Role)
	require.False(t, user.EmailVerified)
	require.NotEqual(t, "s3cret-password", user.Password)
	require.True(t, crypto.VerifyPassword(user.Password, "s3cret-password"))

	var stored models.User
	require.NoError(t, env.db.Take(&stored, "id = ?", user.ID).Error)
	require.NotNil(t, stored.VerificationToken)
	require.Len(t, *stored.VerificationToken, crypto.ActionTokenBytes*2)
	require.NotNil(t, stored.VerificationTokenExpiry)
	require.True(t, stored.VerificationTokenExpiry.After(time.Now().Add(23*time.Hour)))

	messages := env.mailer.sent()
	require.Len(t, messages, 1)
	require.Equal(t, []string{"grace@example.com"}, messages[0].To)
	require.Contains(t, messages[0].Body, "/verify-email?token="+*stored.VerificationToken)
}

func TestSignupDuplicateEmail(t *testing.T) {
	env := newAccountEnv(t)
	env.seedUser(t, "taken@example.com", "password-one", models.RoleUser, true)

	_, err := env.svc.Signup(context.Background(), SignupInput{
		FirstName: "Second",
		LastName:  "Account",
		Email:     "taken@example.com",
		Password:  "password-two",
	})
	require.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
}

func TestSignupSucceedsWhenEmailDispatchFails(t *testing.T) {
	env := newAccountEnv(t)
	env.mailer.err = mail.ErrSMTPDisabled

	user, err := env.svc.Signup(context.Background(), SignupInput{
		FirstName: "No",
		LastName:  "Mail",
		Email:     "nomail@example.com",
		Password:  "s3cret-password",
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
}

func TestLoginSuccess(t *testing.T) {
	env := newAccountEnv(t)
	seeded := env.seedUser(t, "verified@example.com", "correct-horse", models.RoleUser, true)

	token, user, err := env.svc.Login(context.Background(), "Verified@Example.com", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, seeded.ID, user.ID)

	claims, err := env.jwt.VerifySession(token)
	require.NoError(t, err)
	require.Equal(t, seeded.ID, claims.UserID)
	require.Equal(t, "verified@example.com", claims.Email)
	require.Equal(t, models.RoleUser, claims.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newAccountEnv(t)
	env.seedUser(t, "verified@example.com", "correct-horse", models.RoleUser, true)

	_, _, err := env.svc.Login(context.Background(), "verified@example.com", "wrong-password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, _, err = env.svc.Login(context.Background(), "nobody@example.com", "whatever")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLoginSuspendedAccount(t *testing.T) {
	env := newAccountEnv(t)
	env.seedUser(t, "suspended@example.com", "correct-horse", models.RoleSuspended, true)

	_, _, err := env.svc.Login(context.Background(), "suspended@example.com", "correct-horse")
	require.ErrorIs(t, err, apperrors.ErrAccountSuspended)

	// Wrong password on a suspended account reports a credential failure, not
	// the suspension.
	_, _, err = env.svc.Login(context.Background(), "suspended@example.com", "wrong-password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLoginUnverifiedAccount(t *testing.T) {
	env := newAccountEnv(t)
	env.seedUser(t, "pending@example.com", "correct-horse", models.RoleUser, false)

	_, _, err := env.svc.Login(context.Background(), "pending@example.com", "correct-horse")
	require.ErrorIs(t, err, apperrors.ErrEmailNotVerified)
}

func TestVerifyEmailConsumesToken(t *testing.T) {
	env := newAccountEnv(t)

	user, err := env.svc.Signup(context.Background(), SignupInput{
		FirstName: "Pending",
		LastName:  "User",
		Email:     "pending@example.com",
		Password:  "s3cret-password",
	})
	require.NoError(t, err)

	var stored models.User
	require.NoError(t, env.db.Take(&stored, "id = ?", user.ID).Error)
	token := *stored.VerificationToken

	require.NoError(t, env.svc.VerifyEmail(context.Background(), token))

	require.NoError(t, env.db.Take(&stored, "id = ?", user.ID).Error)
	require.True(t, stored.EmailVerified)
	require.Nil(t, stored.VerificationToken)
	require.Nil(t, stored.VerificationTokenExpiry)

	// Second redemption of the same token fails.
	require.ErrorIs(t, env.svc.VerifyEmail(context.Background(), token), apperrors.ErrInvalidActionToken)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	env := newAccountEnv(t)
	user := env.seedUser(t, "stale@example.com", "s3cret-password", models.RoleUser, false)

	token := "a-token-that-has-expired"
	expiry := time.Now().Add(-time.Minute)
	require.NoError(t, env.db.Model(user).Updates(map[string]interface{}{
		"verification_token":        token,
		"verification_token_expiry": expiry,
	}).Error)

	require.ErrorIs(t, env.svc.VerifyEmail(context.Background(), token), apperrors.ErrInvalidActionToken)
	require.ErrorIs(t, env.svc.VerifyEmail(context.Background(), ""), apperrors.ErrInvalidActionToken)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	env := newAccountEnv(t)

	require.NoError(t, env.svc.ForgotPassword(context.Background(), "ghost@example.com"))
	require.Empty(t, env.mailer.sent())
}

func TestForgotPasswordIssuesToken(t *testing.T) {
	env := newAccountEnv(t)
	user := env.seedUser(t, "member@example.com", "old-password", models.RoleUser, true)

	require.NoError(t, env.svc.ForgotPassword(context.Background(), "Member@Example.com"))

	var stored models.User
	require.NoError(t, env.db.Take(&stored, "id = ?", user.ID).Error)
	require.NotNil(t, stored.ResetToken)
	require.NotNil(t, stored.ResetTokenExpiry)
	require.True(t, stored.ResetTokenExpiry.After(time.Now().Add(50*time.Minute)))

	messages := env.mailer.sent()
	require.Len(t, messages, 1)
	require.Contains(t, messages[0].Body, "/reset-password?token="+*stored.ResetToken)
}

func TestResetPasswordConsumesToken(t *testing.T) {
	env := newAccountEnv(t)
	user := env.seedUser(t, "member@example.com", "old-password", models.RoleUser, true)

	require.NoError(t, env.svc.ForgotPassword(context.Background(), "member@example.com"))

	var stored models.User
	require.NoError(t, env.db.Take(&stored, "id = ?", user.ID).Error)
	token := *stored.ResetToken

	require.NoError(t, env.svc.ResetPassword(context.Background(), token, "new-password"))

	_, _, err := env.svc.Login(context.Background(), "member@example.com", "old-password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, _, err = env.svc.Login(context.Background(), "member@example.com", "new-password")
	require.NoError(t, err)

	// The token is single use.
	require.ErrorIs(t, env.svc.ResetPassword(context.Background(), token, "another-password"), apperrors.ErrInvalidActionToken)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newAccountEnv(t)
	user := env.seedUser(t, "member@example.com", "old-password", models.RoleUser, true)

	token := "an-expired-reset-token"
	expiry := time.Now().Add(-time.Second)
	require.NoError(t, env.db.Model(user).Updates(map[string]interface{}{
		"reset_token":        token,
		"reset_token_expiry": expiry,
	}).Error)

	require.ErrorIs(t, env.svc.ResetPassword(context.Background(), token, "new-password"), apperrors.ErrInvalidActionToken)

	// The old password still works.
	_, _, err := env.svc.Login(context.Background(), "member@example.com", "old-password")
	require.NoError(t, err)
}

func TestUserByID(t *testing.T) {
	env := newAccountEnv(t)
	user := env.seedUser(t, "member@example.com", "password", models.RoleUser, true)

	found, err := env.svc.UserByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, user.Email, found.Email)

	_, err = env.svc.UserByID(context.Background(), "missing-id")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
