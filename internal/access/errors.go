// ABOUTME: Error taxonomy for authorization: onboarding-incomplete and capability denial.
// ABOUTME: Only guard functions return these; predicates never fail.
package access

import "errors"

var (
	// ErrUnauthenticated is returned when no identity accompanies the call.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrOnboardingIncomplete means the caller has no organization yet. It is
	// not a security failure: callers redirect to onboarding.
	ErrOnboardingIncomplete = errors.New("organization setup required")

	// ErrDenied matches every *DeniedError via errors.Is.
	ErrDenied = errors.New("access denied")
)

// DeniedError reports which capability a guard refused.
type DeniedError struct {
	Capability Capability
}

func (e *DeniedError) Error() string {
	switch e.Capability {
	case CapabilityMutate:
		return "You don't have permission to make changes."
	case CapabilityDelete:
		return "You don't have permission to delete."
	case CapabilitySettings:
		return "You don't have permission to access settings."
	case CapabilityPricing:
		return "You don't have permission to view pricing."
	case CapabilityAdmin:
		return "Admin access required."
	case CapabilitySuperadmin:
		return "Superadmin access required."
	default:
		return "You don't have permission to do that."
	}
}

// Is makes errors.Is(err, ErrDenied) true for any DeniedError.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// IsDenied reports whether err is a capability denial and returns it.
func IsDenied(err error) (*DeniedError, bool) {
	var d *DeniedError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}
