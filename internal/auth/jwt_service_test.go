package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridwatch/healthindexer/internal/models"
)

func testUser() *models.User {
	return &models.User{
		ID:    "user-1",
		Email: "user@example.com",
		Role:  models.RoleUser,
	}
}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{
		Secret: "test-secret",
		Issuer: "healthindexer-test",
	})
	require.NoError(t, err)

	user := testUser()
	user.Role = models.RoleAdmin

	token, err := svc.IssueSession(user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.VerifySession(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, user.Email, claims.Email)
	require.Equal(t, models.RoleAdmin, claims.Role)
}

func TestSessionExpiry(t *testing.T) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret: "test-secret",
		Clock:  func() time.Time { return current },
	})
	require.NoError(t, err)

	token, err := svc.IssueSession(testUser())
	require.NoError(t, err)

	// Still valid just inside the seven-day window.
	current = current.Add(7*24*time.Hour - time.Minute)
	_, err = svc.VerifySession(token)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = svc.VerifySession(token)
	require.Error(t, err)
}

func TestVerifySessionRejectsTamperedToken(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	other, err := NewJWTService(JWTConfig{Secret: "different-secret"})
	require.NoError(t, err)

	token, err := other.IssueSession(testUser())
	require.NoError(t, err)

	_, err = svc.VerifySession(token)
	require.Error(t, err)
}

func TestVerifySessionChecksIssuer(t *testing.T) {
	issuing, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "other-app"})
	require.NoError(t, err)

	verifying, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "healthindexer"})
	require.NoError(t, err)

	token, err := issuing.IssueSession(testUser())
	require.NoError(t, err)

	_, err = verifying.VerifySession(token)
	require.Error(t, err)
}

func TestDefaultSessionTTL(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)
	require.Equal(t, 7*24*time.Hour, svc.SessionTTL())
}
