// ABOUTME: UserPermissions flag set, the two default bundles, and the effective-permissions projection.
// ABOUTME: JSON tags match the profiles.permissions jsonb document.
package access

import (
	"bytes"
	"encoding/json"
)

// Permissions are the fine-grained flags that only matter for RoleUser.
// The flags are independent; ReadOnly overrides every mutating predicate.
type Permissions struct {
	CanDelete         bool `json:"can_delete"`
	CanAccessSettings bool `json:"can_access_settings"`
	CanSeePricing     bool `json:"can_see_pricing"`
	ReadOnly          bool `json:"read_only"`
}

// AdminDefaultPermissions returns the full-access bundle granted to admins.
func AdminDefaultPermissions() Permissions {
	return Permissions{
		CanDelete:         true,
		CanAccessSettings: true,
		CanSeePricing:     true,
		ReadOnly:          false,
	}
}

// UserDefaultPermissions returns the no-access bundle a user starts with
// until an admin grants flags.
func UserDefaultPermissions() Permissions {
	return Permissions{}
}

// EffectivePermissions projects stored flags onto the permissions actually
// enforced. Admins and superadmins always receive the admin bundle regardless
// of what is persisted; users receive exactly the stored flags, or the user
// default when nothing is stored.
func EffectivePermissions(role Role, stored *Permissions) Permissions {
	if role.IsAdmin() {
		return AdminDefaultPermissions()
	}
	if stored == nil {
		return UserDefaultPermissions()
	}
	return *stored
}

// ParsePermissionsJSON decodes a stored permissions document. An empty
// document or JSON null returns nil: nothing is stored. A document that exists
// but is not an object of booleans returns the read-only bundle, so corrupt
// data never widens access. Keys absent from the object decode as false.
func ParsePermissionsJSON(raw []byte) *Permissions {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var p Permissions
	if raw[0] != '{' || json.Unmarshal(raw, &p) != nil {
		return malformedPermissions()
	}
	return &p
}

func malformedPermissions() *Permissions {
	return &Permissions{ReadOnly: true}
}
