package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gridwatch/healthindexer/internal/models"
	apperrors "github.com/gridwatch/healthindexer/pkg/errors"
)

// AdminUserSummary is the admin panel's view of an account.
type AdminUserSummary struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Email         string      `json:"email"`
	Role          models.Role `json:"role"`
	EmailVerified bool        `json:"email_verified"`
	CreatedAt     string      `json:"created_at"`
}

// UserService covers the administrative user operations.
type UserService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{db: db, logger: logger}
}

// List returns all accounts ordered by creation time, newest first.
func (s *UserService) List(ctx context.Context) ([]AdminUserSummary, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to list users")
	}

	summaries := make([]AdminUserSummary, 0, len(users))
	for i := range users {
		u := &users[i]
		summaries = append(summaries, AdminUserSummary{
			ID:            u.ID,
			Name:          u.FullName(),
			Email:         u.Email,
			Role:          u.Role,
			EmailVerified: u.EmailVerified,
			CreatedAt:     u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	return summaries, nil
}

// UpdateRole assigns a new role to the user. Assigning RoleSuspended blocks
// future logins; existing sessions keep their old role until they expire.
func (s *UserService) UpdateRole(ctx context.Context, userID string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperrors.ErrInvalidRole
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load user")
	}

	if err := s.db.WithContext(ctx).Model(&user).Update("role", role).Error; err != nil {
		return nil, apperrors.Wrap(err, "Failed to update role")
	}

	s.logger.Info("user role updated",
		zap.String("user_id", user.ID),
		zap.String("role", string(role)))

	user.Role = role
	return &user, nil
}
