// ABOUTME: Pure permission predicates shared by rendering decisions and mutation guards.
// ABOUTME: Admin and superadmin short-circuit every predicate; users depend on their flags.
package access

// Capability names a gated action. It is carried by DeniedError so callers
// can render a precise message.
type Capability string

const (
	CapabilityMutate     Capability = "mutate"
	CapabilityDelete     Capability = "delete"
	CapabilitySettings   Capability = "settings"
	CapabilityPricing    Capability = "pricing"
	CapabilityAdmin      Capability = "admin"
	CapabilitySuperadmin Capability = "superadmin"
)

// CanMutate reports whether role/perms may create or update records.
// ReadOnly blocks users even when every other flag is set.
func CanMutate(role Role, perms Permissions) bool {
	if role.IsAdmin() {
		return true
	}
	return !perms.ReadOnly
}

// CanDelete reports whether role/perms may delete (hard or soft) records.
func CanDelete(role Role, perms Permissions) bool {
	if role.IsAdmin() {
		return true
	}
	return perms.CanDelete
}

// CanSeePricing reports whether role/perms may view asking and reserve prices.
func CanSeePricing(role Role, perms Permissions) bool {
	if role.IsAdmin() {
		return true
	}
	return perms.CanSeePricing
}

// CanAccessSettings reports whether role/perms may use the settings surface.
func CanAccessSettings(role Role, perms Permissions) bool {
	if role.IsAdmin() {
		return true
	}
	return perms.CanAccessSettings
}
