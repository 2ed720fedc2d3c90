// ABOUTME: Normalizes a possibly-missing role record into {role, isSuperadmin, permissions}.
// ABOUTME: RoleLookup makes present / absent / failed explicit instead of swallowing errors.
package access

import (
	"errors"
	"fmt"
)

// ErrRoleColumnsMissing marks a failed role lookup caused by the role columns
// not existing yet (schema not migrated). Stores wrap it into the lookup error.
var ErrRoleColumnsMissing = errors.New("role columns not migrated")

// LookupState is the outcome of reading the role fields of a profile.
type LookupState int

const (
	// LookupAbsent: no role record exists for the profile.
	LookupAbsent LookupState = iota
	// LookupPresent: a record was read; individual fields may still be NULL.
	LookupPresent
	// LookupFailed: the read itself failed (missing columns or a store error).
	LookupFailed
)

func (s LookupState) String() string {
	switch s {
	case LookupPresent:
		return "present"
	case LookupFailed:
		return "failed"
	default:
		return "absent"
	}
}

// RoleFields is the raw role record. Nil pointers are unset columns.
type RoleFields struct {
	Role         *string
	IsSuperadmin *bool
	Permissions  *Permissions
}

// RoleLookup is the explicit union handed to ExtractRoleData.
type RoleLookup struct {
	State  LookupState
	Fields RoleFields
	Err    error
}

// Present wraps a successfully read role record.
func Present(f RoleFields) RoleLookup { return RoleLookup{State: LookupPresent, Fields: f} }

// Absent reports that the profile has no role record.
func Absent() RoleLookup { return RoleLookup{State: LookupAbsent} }

// Failed reports that the role record could not be read.
func Failed(err error) RoleLookup {
	if err == nil {
		err = errors.New("role lookup failed")
	}
	return RoleLookup{State: LookupFailed, Err: err}
}

// Degraded reports whether defaults were substituted for unreadable data.
func (l RoleLookup) Degraded() bool { return l.State == LookupFailed }

// Transient reports whether the failure was something other than the role
// columns being absent from the schema.
func (l RoleLookup) Transient() bool {
	return l.State == LookupFailed && !errors.Is(l.Err, ErrRoleColumnsMissing)
}

// RoleData is the normalized triple every caller works with.
type RoleData struct {
	Role         Role
	IsSuperadmin bool
	Permissions  Permissions
}

// DegradePolicy decides what a transient role lookup failure resolves to.
type DegradePolicy int

const (
	// DegradeFailOpen treats every failed lookup like missing data: admin defaults.
	DegradeFailOpen DegradePolicy = iota
	// DegradeFailClosed resolves a transient failure to a read-only user.
	// Missing role columns still fail open so un-migrated tenants keep working.
	DegradeFailClosed
)

func (p DegradePolicy) String() string {
	if p == DegradeFailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// ParseDegradePolicy parses the ROLE_LOOKUP_FAILURE_POLICY setting.
func ParseDegradePolicy(s string) (DegradePolicy, error) {
	switch s {
	case "", "fail_open":
		return DegradeFailOpen, nil
	case "fail_closed":
		return DegradeFailClosed, nil
	default:
		return DegradeFailOpen, fmt.Errorf("unknown role lookup failure policy %q", s)
	}
}

// ExtractRoleData normalizes a role lookup with the default fail-open policy.
//
// Absent and failed lookups deliberately take the same branch as a record
// whose role is unset: role admin, not superadmin, admin permissions. The
// function is total.
func ExtractRoleData(l RoleLookup) RoleData {
	return ExtractRoleDataWithPolicy(l, DegradeFailOpen)
}

// ExtractRoleDataWithPolicy is ExtractRoleData with an explicit policy for
// transient lookup failures.
func ExtractRoleDataWithPolicy(l RoleLookup, policy DegradePolicy) RoleData {
	switch l.State {
	case LookupPresent:
		return fromFields(l.Fields)
	case LookupFailed:
		if policy == DegradeFailClosed && l.Transient() {
			return RoleData{
				Role:        RoleUser,
				Permissions: Permissions{ReadOnly: true},
			}
		}
		return fromFields(RoleFields{})
	default:
		return fromFields(RoleFields{})
	}
}

func fromFields(f RoleFields) RoleData {
	var raw string
	if f.Role != nil {
		raw = *f.Role
	}
	role := ParseRole(raw)

	stored := f.Permissions
	if stored == nil {
		admin := AdminDefaultPermissions()
		stored = &admin
	}

	return RoleData{
		Role:         role,
		IsSuperadmin: f.IsSuperadmin != nil && *f.IsSuperadmin,
		Permissions:  EffectivePermissions(role, stored),
	}
}
