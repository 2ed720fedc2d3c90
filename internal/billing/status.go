// ABOUTME: Subscription status values, the Account record, and the pure write-allowed decision.
// ABOUTME: Allows is the only place subscription status is interpreted.
package billing

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Status is the organization's subscription_status column. Unrecognized
// values are kept verbatim and never allow writes.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusPastDue  Status = "past_due"
)

// Known reports whether s is one of the statuses above.
func (s Status) Known() bool {
	switch s {
	case StatusTrialing, StatusActive, StatusCanceled, StatusExpired, StatusPastDue:
		return true
	}
	return false
}

// Account is the billing state read from the organizations table.
type Account struct {
	OrganizationID uuid.UUID
	Status         Status
	TrialEndsAt    *time.Time
}

// Allows reports whether acct may perform writes at now. Active always may.
// Trialing may only while now is strictly before the trial end; a trial with
// no end date may not. A nil account may not.
func Allows(acct *Account, now time.Time) bool {
	if acct == nil {
		return false
	}
	switch acct.Status {
	case StatusActive:
		return true
	case StatusTrialing:
		if acct.TrialEndsAt == nil {
			return false
		}
		return now.Before(*acct.TrialEndsAt)
	default:
		return false
	}
}

// SubscriptionSummary is what the UI banner needs.
type SubscriptionSummary struct {
	Status        Status     `json:"status"`
	TrialEndsAt   *time.Time `json:"trial_ends_at,omitempty"`
	TrialDaysLeft int        `json:"trial_days_left"`
	WriteAllowed  bool       `json:"write_allowed"`
}

// Summary describes acct at now. TrialDaysLeft rounds up partial days and is
// zero once the trial is over or when the account is not trialing.
func Summary(acct *Account, now time.Time) SubscriptionSummary {
	if acct == nil {
		return SubscriptionSummary{Status: StatusExpired}
	}
	s := SubscriptionSummary{
		Status:       acct.Status,
		TrialEndsAt:  acct.TrialEndsAt,
		WriteAllowed: Allows(acct, now),
	}
	if acct.Status == StatusTrialing && acct.TrialEndsAt != nil {
		left := acct.TrialEndsAt.Sub(now)
		if left > 0 {
			s.TrialDaysLeft = int(math.Ceil(left.Hours() / 24))
		}
	}
	return s
}
