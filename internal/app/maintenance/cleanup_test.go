package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridwatch/healthindexer/internal/cache"
	testutil "github.com/gridwatch/healthindexer/internal/database/testutil"
	"github.com/gridwatch/healthindexer/internal/models"
	"github.com/gridwatch/healthindexer/pkg/crypto"
)

func TestCleanupTokens(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2026, 8, 10, 15, 0, 0, 0, time.UTC)

	hash, err := crypto.HashPassword("password")
	require.NoError(t, err)

	expiredToken := "expired-token"
	expiredAt := now.Add(-time.Hour)
	activeToken := "active-token"
	activeAt := now.Add(time.Hour)

	expired := models.User{
		FirstName: "Expired", LastName: "Tokens",
		Email: "expired@example.com", Password: hash,
		VerificationToken: &expiredToken, VerificationTokenExpiry: &expiredAt,
		ResetToken: &expiredToken, ResetTokenExpiry: &expiredAt,
	}
	active := models.User{
		FirstName: "Active", LastName: "Tokens",
		Email: "active@example.com", Password: hash,
		VerificationToken: &activeToken, VerificationTokenExpiry: &activeAt,
		ResetToken: &activeToken, ResetTokenExpiry: &activeAt,
	}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&active).Error)

	stats, err := CleanupTokens(context.Background(), db, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Verifications)
	require.Equal(t, int64(1), stats.PasswordResets)

	var stored models.User
	require.NoError(t, db.Take(&stored, "email = ?", "expired@example.com").Error)
	require.Nil(t, stored.VerificationToken)
	require.Nil(t, stored.ResetToken)

	require.NoError(t, db.Take(&stored, "email = ?", "active@example.com").Error)
	require.NotNil(t, stored.VerificationToken)
	require.NotNil(t, stored.ResetToken)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2026, 8, 10, 15, 0, 0, 0, time.UTC)

	store := cache.NewDatabaseStore(db)

	entry := models.CacheEntry{Key: "expired", Value: []byte("v"), ExpiresAt: now.Add(-time.Minute)}
	require.NoError(t, db.Create(&entry).Error)

	cleaner := NewCleaner(db,
		WithCacheStore(store),
		WithNow(func() time.Time { return now }),
	)

	require.NoError(t, cleaner.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Where("key = ?", "expired").Count(&count).Error)
	require.Zero(t, count)
}

func TestCleanerStartAndStop(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	cleaner := NewCleaner(db, WithTokenSchedule("@every 1h"))
	require.NoError(t, cleaner.Start())

	ctx := cleaner.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}
