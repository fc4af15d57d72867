package user

import (
	"time"

	"github.com/foretdhiver1228/storefront/internal/auth"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal strips the user down to what authorization needs.
func (u *User) Principal() auth.User {
	return auth.User{ID: u.ID, Roles: append([]string(nil), u.Roles...)}
}

// CredentialsRequest payload for register and login.
// swagger:model CredentialsRequest
type CredentialsRequest struct {
	Email    string `json:"email"    example:"jane@example.com"`
	Password string `json:"password" example:"correct horse battery"`
}

// SetRoleRequest payload for admin role assignment.
// swagger:model SetRoleRequest
type SetRoleRequest struct {
	UserID string `json:"userId" example:"b2f5ff47-2b1e-4f22-8a96-5f3c1f2f2e7b"`
	Role   string `json:"role"   example:"admin"`
}
