// ABOUTME: Role type for the three Patron privilege tiers and its parser.
// ABOUTME: Empty roles parse to admin so pre-migration tenants keep full access.
package access

// Role is the coarse capability tier of a profile. Unlike a numeric ladder,
// only two behaviours exist: admin and superadmin are identical for every
// predicate, and user is governed by explicit permission flags. Superadmin
// checks use Context.IsSuperadmin, never the role string.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
)

// IsAdmin reports whether r short-circuits every permission predicate.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// ParseRole converts a stored role string to a Role.
//
// An empty value maps to RoleAdmin: profiles created before the role columns
// existed belong to single-admin tenants and keep full access. This is a
// deliberate fail-open for backward compatibility. Any other unrecognised
// value maps to RoleUser so that explicit but unknown data gets least privilege.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSuperadmin:
		return RoleSuperadmin
	case RoleAdmin, "":
		return RoleAdmin
	default:
		return RoleUser
	}
}
