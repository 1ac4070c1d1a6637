package auth

import (
	"strings"

	"github.com/gridwatch/healthindexer/internal/models"
)

// Policy decides what a resolved identity may do. The override email grants
// admin rights from the signed token claims alone: revoking the admin role in
// the database does not revoke override access until the session expires.
type Policy struct {
	overrideEmail string
}

// NewPolicy builds a Policy. The override email may be empty, in which case
// only the stored role grants admin access.
func NewPolicy(adminOverrideEmail string) *Policy {
	return &Policy{
		overrideEmail: strings.ToLower(strings.TrimSpace(adminOverrideEmail)),
	}
}

// IsAdmin reports whether the claims carry admin rights, either through the
// role claim or the break-glass override identity.
func (p *Policy) IsAdmin(claims *Claims) bool {
	if claims == nil {
		return false
	}
	if claims.Role == models.RoleAdmin {
		return true
	}
	return p.overrideEmail != "" && strings.EqualFold(claims.Email, p.overrideEmail)
}
