// Package auth holds the authorization vocabulary of the storefront:
// who the caller is, what they may do, and how sessions are minted.
package auth

// Capability names an action that is gated beyond plain authentication.
type Capability string

const (
	ManageProducts Capability = "manage_products"
	ManageRoles    Capability = "manage_roles"
)

const RoleAdmin = "admin"

// User is the identity the capability check works on. It is built from
// whatever the user store holds; storage column names never reach here.
type User struct {
	ID    string
	Roles []string
}

var roleCapabilities = map[string][]Capability{
	RoleAdmin: {ManageProducts, ManageRoles},
}

// HasCapability reports whether any of the user's roles grants c.
func HasCapability(u User, c Capability) bool {
	for _, role := range u.Roles {
		for _, granted := range roleCapabilities[role] {
			if granted == c {
				return true
			}
		}
	}
	return false
}

// KnownRole reports whether role can be assigned through the admin API.
func KnownRole(role string) bool {
	if role == "user" {
		return true
	}
	_, ok := roleCapabilities[role]
	return ok
}
