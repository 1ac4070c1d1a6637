package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridwatch/healthindexer/internal/handlers/testutil"
	"github.com/gridwatch/healthindexer/internal/models"
)

func TestAdminUsersRequiresAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("s3cret-password", models.RoleUser)
	admin := env.CreateUser("s3cret-password", models.RoleAdmin)

	w := env.Request(http.MethodGet, "/api/admin/users", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	userToken := env.Login(user.Email, "s3cret-password")
	w = env.Request(http.MethodGet, "/api/admin/users", nil, userToken)
	require.Equal(t, http.StatusForbidden, w.Code)

	adminToken := env.Login(admin.Email, "s3cret-password")
	w = env.Request(http.MethodGet, "/api/admin/users", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), user.Email)
	require.Contains(t, w.Body.String(), admin.Email)
}

func TestAdminOverrideEmailGrantsAccess(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithAdminOverrideEmail("oncall@example.com"))

	override := env.CreateUser("s3cret-password", models.RoleUser)
	require.NoError(t, env.DB.Model(override).Update("email", "oncall@example.com").Error)

	token := env.Login("oncall@example.com", "s3cret-password")
	w := env.Request(http.MethodGet, "/api/admin/users", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAdminUpdateRole(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("s3cret-password", models.RoleAdmin)
	target := env.CreateUser("target-password", models.RoleUser)
	adminToken := env.Login(admin.Email, "s3cret-password")

	w := env.Request(http.MethodPut, "/api/admin/users/"+target.ID+"/role", map[string]string{
		"role": "suspended",
	}, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The suspended user can no longer log in.
	w = env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    target.Email,
		"password": "target-password",
	}, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "ACCOUNT_SUSPENDED")

	// Reinstate.
	w = env.Request(http.MethodPut, "/api/admin/users/"+target.ID+"/role", map[string]string{
		"role": "user",
	}, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	env.Login(target.Email, "target-password")
}

func TestAdminUpdateRoleValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("s3cret-password", models.RoleAdmin)
	target := env.CreateUser("target-password", models.RoleUser)
	adminToken := env.Login(admin.Email, "s3cret-password")

	w := env.Request(http.MethodPut, "/api/admin/users/"+target.ID+"/role", map[string]string{
		"role": "superuser",
	}, adminToken)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "INVALID_ROLE")

	w = env.Request(http.MethodPut, "/api/admin/users/no-such-user/role", map[string]string{
		"role": "admin",
	}, adminToken)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHistoryScopes(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("s3cret-password", models.RoleAdmin)
	alice := env.CreateUser("password", models.RoleUser)
	bob := env.CreateUser("password", models.RoleUser)

	for _, row := range []models.AnalysisLog{
		{UserID: alice.ID, TransformerID: "TX-1", Location: "North", InferenceDate: "2026-08-01", InferenceTime: "09:00", HealthIndexScore: 90, ParamsScores: []byte(`[]`), Status: models.AnalysisStatusHealthy},
		{UserID: bob.ID, TransformerID: "TX-2", Location: "South", InferenceDate: "2026-08-02", InferenceTime: "10:00", HealthIndexScore: 40, ParamsScores: []byte(`[]`), Status: models.AnalysisStatusCritical},
	} {
		require.NoError(t, env.DB.Create(&row).Error)
	}

	adminToken := env.Login(admin.Email, "s3cret-password")

	w := env.Request(http.MethodGet, "/api/admin/history?scope=all", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "TX-1")
	require.Contains(t, w.Body.String(), "TX-2")

	w = env.Request(http.MethodGet, "/api/admin/history?userId="+alice.ID, nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "TX-1")
	require.NotContains(t, w.Body.String(), "TX-2")

	// Neither selector present is a client error.
	w = env.Request(http.MethodGet, "/api/admin/history", nil, adminToken)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
