// ABOUTME: Context is the per-call authorization snapshot produced by Resolver.Resolve.
// ABOUTME: Built fresh for every operation; never cached, stored, or shared across users.
package access

import "github.com/google/uuid"

// Context is the resolved authorization state of one caller for one
// operation. OrganizationID is never uuid.Nil on a Context returned by
// Resolver.
type Context struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           Role
	IsSuperadmin   bool
	Permissions    Permissions
	// Degraded is set when role data could not be read and defaults were
	// substituted. Internal only.
	Degraded bool
}

func (c Context) CanMutate() bool         { return CanMutate(c.Role, c.Permissions) }
func (c Context) CanDelete() bool         { return CanDelete(c.Role, c.Permissions) }
func (c Context) CanSeePricing() bool     { return CanSeePricing(c.Role, c.Permissions) }
func (c Context) CanAccessSettings() bool { return CanAccessSettings(c.Role, c.Permissions) }

// Allows evaluates capability want against the context. Admin is a role
// check (denied exactly for RoleUser); superadmin looks only at the
// IsSuperadmin flag and is unaffected by the admin short-circuit.
func (c Context) Allows(want Capability) bool {
	switch want {
	case CapabilityMutate:
		return c.CanMutate()
	case CapabilityDelete:
		return c.CanDelete()
	case CapabilitySettings:
		return c.CanAccessSettings()
	case CapabilityPricing:
		return c.CanSeePricing()
	case CapabilityAdmin:
		return c.Role != RoleUser
	case CapabilitySuperadmin:
		return c.IsSuperadmin
	default:
		return false
	}
}
