// ABOUTME: Template data for the invitation and follow-up reminder emails.
package notify

import "time"

// Invitation is the data of an invitation email.
type Invitation struct {
	To               string
	InviterName      string
	OrganizationName string
	AcceptURL        string
	ExpiresAt        time.Time
}

// ExpiresInDays is the whole number of days until the invitation expires,
// rounded to the nearest day and never below one.
func (i Invitation) ExpiresInDays() int {
	d := int(time.Until(i.ExpiresAt).Hours()/24 + 0.5)
	if d < 1 {
		return 1
	}
	return d
}

// ReminderItem is one line of a follow-up digest.
type ReminderItem struct {
	// Label is "OVERDUE" or "Due today".
	Label      string
	ClientName string
	Snippet    string
}

// Reminder is a follow-up digest addressed to one member.
type Reminder struct {
	To            string
	RecipientName string
	Items         []ReminderItem
	TodayURL      string
}

// Count is the number of follow-ups in the digest.
func (r Reminder) Count() int { return len(r.Items) }

// Greeting is the recipient name or a neutral fallback.
func (r Reminder) Greeting() string {
	if r.RecipientName == "" {
		return "there"
	}
	return r.RecipientName
}
