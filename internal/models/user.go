package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role describes a user's access level. Suspension is modelled as a role so
// that a single column drives both access and account status.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleUser      Role = "user"
	RoleSuspended Role = "suspended"
)

// Valid reports whether the role is one of the assignable values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleSuspended:
		return true
	}
	return false
}

// User is a registered account. Action tokens (password reset and email
// verification) live on the row itself and are consumed with conditional
// updates so a token can only ever be redeemed once.
type User struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	FirstName string `gorm:"not null" json:"first_name"`
	LastName  string `gorm:"not null" json:"last_name"`
	Email     string `gorm:"uniqueIndex;not null" json:"email"`
	Password  string `gorm:"not null" json:"-"`

	Role Role `gorm:"type:varchar(16);default:user;not null;index" json:"role"`

	EmailVerified           bool       `gorm:"default:false;not null" json:"email_verified"`
	VerificationToken       *string    `gorm:"index" json:"-"`
	VerificationTokenExpiry *time.Time `json:"-"`

	ResetToken       *string    `gorm:"index" json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// FullName joins the stored name parts for display.
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
